package studioapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ScheduleRecord describes a posting-calendar entry for one piece of media,
// keyed by its canonical locator.
type ScheduleRecord struct {
	ScheduleID   string    `json:"scheduleId"`
	ScheduledAt  time.Time `json:"scheduledAt"`
	MediaLocator string    `json:"mediaLocator"`
	MediaType    string    `json:"mediaType,omitempty"`
	MainText     string    `json:"mainText,omitempty"`
}

// LookupSchedule asks the backend whether media with the given canonical
// locator already sits on the posting calendar. Absence of a schedule is a
// normal outcome, reported as (nil, nil).
func (c *Client) LookupSchedule(ctx context.Context, locator string) (*ScheduleRecord, error) {
	if locator == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("locator", locator)
	var record ScheduleRecord
	err := c.doJSON(ctx, http.MethodGet, "/api/schedule/lookup?"+q.Encode(), nil, &record)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup schedule: %w", err)
	}
	return &record, nil
}
