// Package reconcile moves entries between the local cache and the backend.
//
// Every local change is written to the cache first and then sent to the
// backend. Whatever the backend hasn't confirmed stays pending and is flushed
// on the next chance: at start, on an explicit sync, or once the backend is
// reachable again.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sethvargo/go-retry"

	"github.com/jdholdren/linkcal/internal/linkcal"
	"github.com/jdholdren/linkcal/internal/localcache"
	"github.com/jdholdren/linkcal/internal/logger"
	"github.com/jdholdren/linkcal/internal/remote"
)

// Remote is the backend as the syncer needs it.
type Remote interface {
	FetchMonth(ctx context.Context, calendarID, month string) ([]linkcal.Entry, error)
	UpsertEntry(ctx context.Context, calendarID string, entry linkcal.Entry) (*linkcal.Entry, error)
	UpsertBatch(ctx context.Context, calendarID string, entries []linkcal.Entry) error
	Export(ctx context.Context, calendarID string) (linkcal.Export, error)
	Health(ctx context.Context) error
}

// ConfirmFunc is asked before legacy data is imported, with the number of
// entries found.
type ConfirmFunc func(count int) bool

// Syncer keeps one calendar's local cache and the backend in step.
//
// Its lock only covers the syncer's own bookkeeping. It is never held across
// a call to the backend, so writes can land while a flush or a month load is
// in flight.
type Syncer struct {
	store     *localcache.Store
	remote    Remote
	now       func() time.Time
	batchSize int
	confirm   ConfirmFunc

	mu         sync.Mutex
	calendarID string
	loaded     *lru.Cache[string, struct{}]
	loadSeq    uint64
	status     Status
}

type Option func(*Syncer)

// WithConfirm sets the question asked before importing legacy data. Without
// one, legacy data is always imported.
func WithConfirm(f ConfirmFunc) Option {
	return func(s *Syncer) { s.confirm = f }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// WithBatchSize caps how many entries go out in one batch write.
func WithBatchSize(n int) Option {
	return func(s *Syncer) {
		if n > 0 && n <= linkcal.MaxBatchSize {
			s.batchSize = n
		}
	}
}

// New creates a syncer for the calendar the store has as current.
func New(store *localcache.Store, rmt Remote, opts ...Option) (*Syncer, error) {
	calendarID, err := store.CurrentCalendarID()
	if err != nil {
		return nil, err
	}

	// Only membership matters, the size just bounds a long session
	loaded, err := lru.New[string, struct{}](256)
	if err != nil {
		return nil, fmt.Errorf("error creating month set: %s", err)
	}

	s := &Syncer{
		store:      store,
		remote:     rmt,
		now:        time.Now,
		batchSize:  linkcal.MaxBatchSize,
		calendarID: calendarID,
		loaded:     loaded,
		status:     Status{State: StateUnknown},
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// CalendarID is the calendar key in use.
func (s *Syncer) CalendarID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calendarID
}

func (s *Syncer) fail(ctx context.Context, msg string, err error) {
	slog.Log(ctx, levelFor(err), "cloud request failed", "status", msg, "error", err)
	s.setStatus(StateError, msg, err)
}

// Connectivity problems are expected and retried later.
func levelFor(err error) slog.Level {
	if remote.IsConnectivity(err) {
		return slog.LevelWarn
	}
	return slog.LevelError
}

// Entry returns the saved entry for a date in the current calendar.
func (s *Syncer) Entry(date string) (linkcal.Entry, bool) {
	return s.store.Entry(s.CalendarID(), date)
}

// MonthEntries returns the current calendar's entries for a YYYY-MM month.
func (s *Syncer) MonthEntries(month string) []linkcal.Entry {
	return s.store.MonthEntries(s.CalendarID(), month)
}

// Pending returns the writes the backend hasn't confirmed yet. A nil entry
// is a deletion.
func (s *Syncer) Pending() map[string]*linkcal.Entry {
	return s.store.Pending(s.CalendarID())
}

// SetEntry saves a day locally and then tries to send it to the backend.
// An empty title and url clear the day.
//
// Only a failure to save locally or a malformed date is returned. If the
// backend can't take the write it stays pending and the status says so.
func (s *Syncer) SetEntry(ctx context.Context, date, title, url string) (linkcal.Entry, error) {
	if !linkcal.IsISODate(date) {
		return linkcal.Entry{}, fmt.Errorf("%w: date must be YYYY-MM-DD", linkcal.ErrValidation)
	}

	calendarID := s.CalendarID()
	ctx = logger.Calendar(ctx, calendarID)

	e := linkcal.Entry{Date: date, Title: title, URL: url}.Normalize()
	var local *linkcal.Entry
	if !e.Empty() {
		now := s.now().UTC()
		e.UpdatedAt = &now
		local = &e
	}
	if err := s.store.SetEntry(calendarID, date, local); err != nil {
		return linkcal.Entry{}, err
	}

	stored, err := s.remote.UpsertEntry(ctx, calendarID, e)
	if err != nil {
		s.fail(ctx, msgError, err)
		return e, nil
	}

	if err := s.store.ClearPending(calendarID, map[string]*linkcal.Entry{date: local}); err != nil {
		return e, err
	}
	if stored != nil {
		stored.Date = date
		if err := s.store.Merge(calendarID, []linkcal.Entry{*stored}); err != nil {
			return e, err
		}
	}
	s.setStatus(StateSynced, msgSynced, nil)

	return e, nil
}

// FlushPending sends every pending write to the backend.
//
// Pending is read once up front and only the dates that still hold the value
// that was sent are cleared afterwards. A write made during the flush stays
// pending for the next one.
func (s *Syncer) FlushPending(ctx context.Context) error {
	calendarID := s.CalendarID()
	ctx = logger.Calendar(ctx, calendarID)

	snapshot := s.store.Pending(calendarID)
	if len(snapshot) == 0 {
		return nil
	}

	s.setStatus(StateSyncing, msgSyncing, nil)
	slog.DebugContext(ctx, "flushing pending writes", "count", len(snapshot))

	dates := make([]string, 0, len(snapshot))
	for date := range snapshot {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for start := 0; start < len(dates); start += s.batchSize {
		end := min(start+s.batchSize, len(dates))

		chunk := make(map[string]*linkcal.Entry, end-start)
		batch := make([]linkcal.Entry, 0, end-start)
		for _, date := range dates[start:end] {
			pending := snapshot[date]
			chunk[date] = pending

			e := linkcal.Entry{Date: date}
			if pending != nil {
				e.Title, e.URL = pending.Title, pending.URL
			}
			batch = append(batch, e)
		}

		if err := s.remote.UpsertBatch(ctx, calendarID, batch); err != nil {
			s.fail(ctx, msgError, err)
			return fmt.Errorf("error flushing pending writes: %w", err)
		}
		if err := s.store.ClearPending(calendarID, chunk); err != nil {
			return err
		}
	}
	s.setStatus(StateSynced, msgSynced, nil)

	return nil
}

// LoadMonth fetches a YYYY-MM month from the backend into the cache. Months
// already loaded this session are skipped. Fetched entries never replace a
// date with a pending write.
//
// When another month load starts before this one returns, this one's
// response is dropped.
func (s *Syncer) LoadMonth(ctx context.Context, month string) error {
	if !linkcal.IsMonth(month) {
		return fmt.Errorf("%w: month must be YYYY-MM", linkcal.ErrValidation)
	}

	s.mu.Lock()
	if s.loaded.Contains(month) {
		s.mu.Unlock()
		return nil
	}
	s.loadSeq++
	seq := s.loadSeq
	calendarID := s.calendarID
	s.mu.Unlock()

	ctx = logger.Calendar(ctx, calendarID)
	s.setStatus(StateSyncing, msgLoading, nil)

	entries, err := s.remote.FetchMonth(ctx, calendarID, month)

	s.mu.Lock()
	stale := seq != s.loadSeq
	s.mu.Unlock()
	if stale {
		slog.DebugContext(ctx, "dropping stale month", "month", month)
		return nil
	}

	if err != nil {
		s.fail(ctx, msgError, err)
		return fmt.Errorf("error loading %s: %w", month, err)
	}
	if err := s.store.Merge(calendarID, entries); err != nil {
		return err
	}

	s.mu.Lock()
	s.loaded.Add(month, struct{}{})
	s.mu.Unlock()
	s.setStatus(StateSynced, msgSynced, nil)

	return nil
}

// DetectCloud checks whether the backend is there.
func (s *Syncer) DetectCloud(ctx context.Context) error {
	if err := s.remote.Health(ctx); err != nil {
		slog.WarnContext(ctx, "cloud not available", "error", err)
		s.setStatus(StateError, msgNoCloud, err)
		return err
	}
	s.setStatus(StateReady, msgReady, nil)

	return nil
}

// WaitOnline probes the backend with a growing delay until it answers or
// maxWait passes, then flushes pending writes.
func (s *Syncer) WaitOnline(ctx context.Context, maxWait time.Duration) error {
	b := retry.WithMaxDuration(maxWait, retry.WithCappedDuration(10*time.Second, retry.NewFibonacci(500*time.Millisecond)))
	if err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := s.remote.Health(ctx)
		if remote.IsConnectivity(err) {
			slog.DebugContext(ctx, "cloud still unavailable", "error", err)
			return retry.RetryableError(err)
		}
		return err
	}); err != nil {
		s.setStatus(StateError, msgNoCloud, err)
		return fmt.Errorf("cloud did not come back: %w", err)
	}
	s.setStatus(StateReady, msgReady, nil)

	return s.FlushPending(ctx)
}

// Start runs the steps for opening a calendar: check the backend, pick up
// legacy data, load the current month and flush what's pending.
//
// Being offline is not an error here; it only shows in the status.
func (s *Syncer) Start(ctx context.Context) error {
	return s.open(ctx, true)
}

func (s *Syncer) open(ctx context.Context, withLegacy bool) error {
	if err := s.DetectCloud(ctx); err != nil && !remote.IsConnectivity(err) {
		return err
	}
	if withLegacy {
		if _, err := s.MigrateLegacy(ctx); err != nil {
			return err
		}
	}
	if err := s.LoadMonth(ctx, linkcal.MonthOf(s.now())); err != nil && !remote.IsConnectivity(err) {
		return err
	}
	if err := s.FlushPending(ctx); err != nil && !remote.IsConnectivity(err) {
		return err
	}

	return nil
}

// SwitchCalendar makes id the calendar in use and opens it. The other
// calendar's cache stays on disk untouched.
func (s *Syncer) SwitchCalendar(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if !linkcal.IsCalendarID(id) {
		return fmt.Errorf("%w: calendar key looks too short", linkcal.ErrValidation)
	}
	if err := s.store.SetCurrentCalendarID(id); err != nil {
		return err
	}

	s.mu.Lock()
	s.calendarID = id
	s.loaded.Purge()
	// Any month load still in flight belongs to the old calendar
	s.loadSeq++
	s.status = Status{State: StateUnknown}
	s.mu.Unlock()

	slog.InfoContext(logger.Calendar(ctx, id), "switched calendar")

	return s.open(ctx, false)
}

// NewCalendar switches to a freshly generated calendar key.
func (s *Syncer) NewCalendar(ctx context.Context) (string, error) {
	id := localcache.NewCalendarID()
	if err := s.SwitchCalendar(ctx, id); err != nil {
		return "", err
	}

	return id, nil
}
