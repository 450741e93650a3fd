// Package schedule caches posting-calendar lookups keyed by canonical media
// locator. The UI asks "is this media already scheduled" on every render, so
// the cache keeps both positive results and explicit "no schedule" answers,
// and collapses concurrent lookups for the same locator into one request.
package schedule

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/mquinn/poststudio/internal/studioapi"
)

// LookupFunc fetches the schedule record for a canonical locator.
// (*studioapi.Client).LookupSchedule satisfies it directly.
type LookupFunc func(ctx context.Context, locator string) (*studioapi.ScheduleRecord, error)

// Cache memoizes schedule lookups per canonical locator. A stored nil record
// is a confirmed "no schedule" answer and is served from cache like any
// other hit. Lookup errors are not cached; the next call retries.
type Cache struct {
	fetch LookupFunc
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*studioapi.ScheduleRecord
}

// New creates a Cache backed by the given lookup function.
func New(fetch LookupFunc) *Cache {
	return &Cache{
		fetch:   fetch,
		entries: make(map[string]*studioapi.ScheduleRecord),
	}
}

// GetOrFetch returns the schedule record for locator, fetching it at most
// once per cache lifetime. Concurrent calls for the same locator share a
// single in-flight request. An empty locator means the media has no stable
// identity; it returns (nil, nil) without fetching.
func (c *Cache) GetOrFetch(ctx context.Context, locator string) (*studioapi.ScheduleRecord, error) {
	if locator == "" {
		return nil, nil
	}
	if record, ok := c.peek(locator); ok {
		return record, nil
	}

	v, err, _ := c.group.Do(locator, func() (any, error) {
		// A winner may have stored the entry between our peek and Do.
		if record, ok := c.peek(locator); ok {
			return record, nil
		}
		record, err := c.fetch(ctx, locator)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[locator] = record
		c.mu.Unlock()
		log.Debug().Str("locator", locator).Bool("scheduled", record != nil).Msg("Cached schedule lookup")
		return record, nil
	})
	if err != nil {
		return nil, fmt.Errorf("schedule lookup: %w", err)
	}
	return v.(*studioapi.ScheduleRecord), nil
}

// Peek returns the cached record for locator without fetching. The second
// return is false when the locator has never been resolved; a (nil, true)
// result is a confirmed "no schedule".
func (c *Cache) Peek(locator string) (*studioapi.ScheduleRecord, bool) {
	if locator == "" {
		return nil, false
	}
	return c.peek(locator)
}

// Invalidate drops the cached entry for locator, forcing the next
// GetOrFetch to consult the backend again. Called after a publish changes
// the calendar.
func (c *Cache) Invalidate(locator string) {
	if locator == "" {
		return
	}
	c.mu.Lock()
	delete(c.entries, locator)
	c.mu.Unlock()
	c.group.Forget(locator)
}

func (c *Cache) peek(locator string) (*studioapi.ScheduleRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record, ok := c.entries[locator]
	return record, ok
}
