// Package generation tracks a batch content-generation job from start to
// terminal state: it plans the fixed slot layout, polls the job status
// endpoint, and folds progress snapshots into the slots.
package generation

import (
	"github.com/mquinn/poststudio/internal/studioapi"
)

// Planned content shapes for a slot. The server may reclassify a slot's
// contentType mid-generation; PlannedType never changes.
const (
	TypePost   = "post"
	TypeThread = "thread"
	TypeVideo  = "video"
)

// PlaceholderText fills a slot until the first snapshot populates it. Slots
// the generator never reaches keep it through completion.
const PlaceholderText = "Generating..."

// Slot is one planned piece of content in a batch job. Index is the stable
// 1-based identity assigned at job start; it is what snapshot metadata keys
// refer to and it never changes.
type Slot struct {
	Index       int
	PlannedType string
	Text        string
	ImageURL    string
	VideoURL    string
	ThreadArray []string
	ContentType string
}

// HasVideo reports whether publishing this slot involves video media,
// either because a video URL has landed or because the server classified
// the slot as video ahead of the URL commit.
func (s Slot) HasVideo() bool {
	return s.VideoURL != "" || s.ContentType == TypeVideo
}

// BuildSlots plans the slot layout for a job: count slots, typed by
// expanding the mix in post, thread, video order, trimmed or padded with
// posts so the layout always has exactly count entries. The layout is fixed
// for the job's lifetime; snapshots only ever fill it in.
func BuildSlots(count int, mix studioapi.SlotMix) []Slot {
	if count <= 0 {
		return nil
	}

	types := make([]string, 0, count)
	for i := 0; i < mix.Posts && len(types) < count; i++ {
		types = append(types, TypePost)
	}
	for i := 0; i < mix.Threads && len(types) < count; i++ {
		types = append(types, TypeThread)
	}
	for i := 0; i < mix.Videos && len(types) < count; i++ {
		types = append(types, TypeVideo)
	}
	for len(types) < count {
		types = append(types, TypePost)
	}

	slots := make([]Slot, count)
	for i := range slots {
		slots[i] = Slot{
			Index:       i + 1,
			PlannedType: types[i],
			Text:        PlaceholderText,
			ContentType: types[i],
		}
	}
	return slots
}
