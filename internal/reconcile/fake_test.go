package reconcile

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jdholdren/linkcal/internal/linkcal"
	"github.com/jdholdren/linkcal/internal/remote"
)

var errDown = &remote.ConnectivityError{Err: errors.New("connection refused")}

// fakeRemote is an in-memory backend for one or more calendars.
type fakeRemote struct {
	mu      sync.Mutex
	entries map[string]map[string]linkcal.Entry
	down    bool
	batches [][]linkcal.Entry
	singles int
	fetches int
	healths int

	// Runs before a single write is applied, outside the lock.
	beforeSingle func()
	// Runs before a batch write is applied, outside the lock.
	beforeBatch func()
	// Runs before a month is returned, outside the lock.
	beforeFetch func(month string)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{entries: map[string]map[string]linkcal.Entry{}}
}

func (f *fakeRemote) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeRemote) put(calendarID string, e linkcal.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apply(calendarID, e)
}

func (f *fakeRemote) apply(calendarID string, e linkcal.Entry) *linkcal.Entry {
	cal, ok := f.entries[calendarID]
	if !ok {
		cal = map[string]linkcal.Entry{}
		f.entries[calendarID] = cal
	}
	e = e.Normalize()
	if e.Empty() {
		delete(cal, e.Date)
		return nil
	}
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e.UpdatedAt = &at
	cal[e.Date] = e
	return &e
}

func (f *fakeRemote) stored(calendarID string) map[string]linkcal.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := map[string]linkcal.Entry{}
	for date, e := range f.entries[calendarID] {
		out[date] = e
	}
	return out
}

func (f *fakeRemote) FetchMonth(ctx context.Context, calendarID, month string) ([]linkcal.Entry, error) {
	if f.beforeFetch != nil {
		f.beforeFetch(month)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.down {
		return nil, errDown
	}

	var out []linkcal.Entry
	for date, e := range f.entries[calendarID] {
		if strings.HasPrefix(date, month+"-") {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (f *fakeRemote) UpsertEntry(ctx context.Context, calendarID string, entry linkcal.Entry) (*linkcal.Entry, error) {
	if f.beforeSingle != nil {
		f.beforeSingle()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.singles++
	if f.down {
		return nil, errDown
	}
	return f.apply(calendarID, entry), nil
}

func (f *fakeRemote) UpsertBatch(ctx context.Context, calendarID string, entries []linkcal.Entry) error {
	if f.beforeBatch != nil {
		f.beforeBatch()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errDown
	}
	if len(entries) > linkcal.MaxBatchSize {
		return &remote.ValidationError{Status: http.StatusBadRequest, Message: "Too many entries (max 500)."}
	}
	f.batches = append(f.batches, append([]linkcal.Entry(nil), entries...))
	for _, e := range entries {
		f.apply(calendarID, e)
	}
	return nil
}

func (f *fakeRemote) Export(ctx context.Context, calendarID string) (linkcal.Export, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return linkcal.Export{}, errDown
	}

	exp := linkcal.Export{ExportedAt: time.Now().UTC(), CalendarID: calendarID, Entries: []linkcal.Entry{}}
	for _, e := range f.entries[calendarID] {
		exp.Entries = append(exp.Entries, e)
	}
	sort.Slice(exp.Entries, func(i, j int) bool { return exp.Entries[i].Date < exp.Entries[j].Date })
	return exp, nil
}

func (f *fakeRemote) Health(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healths++
	if f.down {
		return errDown
	}
	return nil
}
