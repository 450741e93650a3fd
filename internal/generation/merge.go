package generation

import (
	"github.com/mquinn/poststudio/internal/studioapi"
)

// Merge folds one progress snapshot over the current slots and returns the
// updated layout. The input slice is never mutated.
//
// Merging is monotonic per field: only non-empty metadata fields overwrite,
// so a later snapshot that omits a field leaves the earlier value standing.
// The video URL in particular is sticky, because a status response can race
// the commit of the video field and arrive without it. ContentType is the
// one field the server may flip mid-generation; its last non-empty value
// wins.
//
// An empty layout stays empty. Slots only ever come from job
// initialization, never from a snapshot.
func Merge(slots []Slot, snap *studioapi.Snapshot) []Slot {
	if len(slots) == 0 || snap == nil {
		return slots
	}

	out := make([]Slot, len(slots))
	copy(out, slots)

	for i := range out {
		slot := &out[i]
		if meta, ok := snap.Item(slot.Index); ok {
			if meta.Text != "" {
				slot.Text = meta.Text
			}
			if meta.ImageURL != "" {
				slot.ImageURL = meta.ImageURL
			}
			if len(meta.ThreadArray) > 0 {
				slot.ThreadArray = append([]string(nil), meta.ThreadArray...)
			}
			if meta.ContentType != "" {
				slot.ContentType = meta.ContentType
			}
		}
		if video, ok := snap.Video(slot.Index); ok && video.VideoURL != "" {
			slot.VideoURL = video.VideoURL
		}
	}
	return out
}
