// Package linkcal holds the types shared by the entries backend and the
// syncing client: a day on a calendar with a title and a link.
package linkcal

import (
	"context"
	"errors"
	"time"
)

var (
	ErrValidation = errors.New("invalid input")
	ErrNotFound   = errors.New("resource not found")
)

const (
	// MaxBatchSize is the largest number of entries accepted in one batch write.
	MaxBatchSize = 500
	// MaxTitleLength bounds stored titles, in characters.
	MaxTitleLength = 120

	minCalendarIDLength = 10
	maxCalendarIDLength = 80
)

type (
	// Entry is the link saved on a single calendar day.
	//
	// An entry with both an empty title and an empty url is absent: writing one
	// is the same as deleting the day.
	Entry struct {
		Date      string     `json:"date,omitempty"`
		Title     string     `json:"title"`
		URL       string     `json:"url"`
		UpdatedAt *time.Time `json:"updatedAt"`
	}

	// Export is a full dump of a calendar.
	Export struct {
		ExportedAt time.Time `json:"exportedAt"`
		CalendarID string    `json:"calendarId"`
		Entries    []Entry   `json:"entries"`

		// Only set when the dump was produced from a local cache.
		Pending map[string]*Entry `json:"pending,omitempty"`
	}

	// Repository is the surface over the remote table of entries.
	Repository interface {
		MonthEntries(ctx context.Context, calendarID, month string) ([]Entry, error)
		UpsertEntry(ctx context.Context, calendarID string, entry Entry) (Entry, error)
		DeleteEntry(ctx context.Context, calendarID, date string) error
		ApplyBatch(ctx context.Context, calendarID string, entries []Entry) error
		AllEntries(ctx context.Context, calendarID string) ([]Entry, error)
		Ping(ctx context.Context) error
	}
)

// Empty reports whether the entry carries nothing and so counts as absent.
func (e Entry) Empty() bool {
	return e.Title == "" && e.URL == ""
}

// Normalize returns the entry with its title trimmed and clamped and its url
// made absolute.
func (e Entry) Normalize() Entry {
	e.Title = NormalizeTitle(e.Title)
	e.URL = NormalizeURL(e.URL)
	return e
}

// Same reports whether two entries hold the same content and timestamp.
// The date is not compared.
func (e Entry) Same(o Entry) bool {
	if e.Title != o.Title || e.URL != o.URL {
		return false
	}
	if e.UpdatedAt == nil || o.UpdatedAt == nil {
		return e.UpdatedAt == nil && o.UpdatedAt == nil
	}

	return e.UpdatedAt.Equal(*o.UpdatedAt)
}
