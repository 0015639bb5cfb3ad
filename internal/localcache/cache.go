// Package localcache keeps a calendar's entries on this machine, along with
// the writes that haven't been confirmed by the backend yet.
package localcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jdholdren/linkcal/internal/linkcal"
	"github.com/jdholdren/linkcal/internal/logger"
)

const (
	cachePrefix   = "linkCalendar.cache.v2."
	calendarIDKey = "linkCalendar.calendarId.v1"
	legacyKey     = "linkCalendar.v1"
)

// Cache is everything known locally about one calendar.
type Cache struct {
	// The merged view of the backend and local edits, by date.
	Entries map[string]linkcal.Entry `json:"entries"`
	// Local writes not yet acknowledged by the backend, by date. A nil
	// value is a pending deletion.
	Pending map[string]*linkcal.Entry `json:"pending"`
}

func emptyCache() *Cache {
	return &Cache{
		Entries: map[string]linkcal.Entry{},
		Pending: map[string]*linkcal.Entry{},
	}
}

func (c *Cache) clone() Cache {
	out := Cache{
		Entries: make(map[string]linkcal.Entry, len(c.Entries)),
		Pending: clonePending(c.Pending),
	}
	for date, e := range c.Entries {
		out.Entries[date] = e
	}

	return out
}

func clonePending(p map[string]*linkcal.Entry) map[string]*linkcal.Entry {
	out := make(map[string]*linkcal.Entry, len(p))
	for date, e := range p {
		if e == nil {
			out[date] = nil
			continue
		}
		cp := *e
		out[date] = &cp
	}

	return out
}

// Store is the local cache for every calendar key used on this machine.
//
// A calendar's cache is read from the [KV] the first time it's referenced,
// kept in memory afterwards and written back after every change.
type Store struct {
	kv KV

	mu     sync.Mutex
	caches map[string]*Cache
}

func New(kv KV) *Store {
	return &Store{
		kv:     kv,
		caches: map[string]*Cache{},
	}
}

func cacheKey(calendarID string) string {
	return cachePrefix + calendarID
}

// Loads the cache for a calendar. Missing or corrupt state is an empty cache.
// Any other read failure is returned and nothing is kept, so the record on
// disk is never replaced with an empty one.
func (s *Store) load(calendarID string) (*Cache, error) {
	if c, ok := s.caches[calendarID]; ok {
		return c, nil
	}

	c := emptyCache()
	byts, err := s.kv.Get(cacheKey(calendarID))
	switch {
	case errors.Is(err, ErrNoKey):
	case err != nil:
		return nil, fmt.Errorf("error reading cache: %w", err)
	default:
		var parsed Cache
		if err := json.Unmarshal(byts, &parsed); err != nil {
			slog.Warn("corrupt cache, starting empty", "calendar", logger.Redact(calendarID), "error", err)
			break
		}
		if parsed.Entries != nil {
			c.Entries = parsed.Entries
		}
		if parsed.Pending != nil {
			c.Pending = parsed.Pending
		}
	}
	s.caches[calendarID] = c

	return c, nil
}

// Loads the cache for reading. A cache that can't be read shows as empty
// for this call only.
func (s *Store) view(calendarID string) *Cache {
	c, err := s.load(calendarID)
	if err != nil {
		slog.Warn("error reading cache, showing it empty", "calendar", logger.Redact(calendarID), "error", err)
		return emptyCache()
	}

	return c
}

// Applies a change to a copy of the calendar's cache and keeps the copy only
// once it's persisted. apply reports whether anything changed.
func (s *Store) update(calendarID string, apply func(c *Cache) bool) error {
	current, err := s.load(calendarID)
	if err != nil {
		return err
	}

	next := current.clone()
	if !apply(&next) {
		return nil
	}
	if err := s.save(calendarID, &next); err != nil {
		return err
	}
	s.caches[calendarID] = &next

	return nil
}

func (s *Store) save(calendarID string, c *Cache) error {
	byts, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("error encoding cache: %s", err)
	}
	if err := s.kv.Set(cacheKey(calendarID), byts); err != nil {
		return fmt.Errorf("error persisting cache: %w", err)
	}

	return nil
}

// Get returns a copy of the calendar's cache.
func (s *Store) Get(calendarID string) Cache {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.view(calendarID).clone()
}

// Entry returns the entry saved for a date, if there is a non-empty one.
func (s *Store) Entry(calendarID, date string) (linkcal.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.view(calendarID).Entries[date]
	if !ok {
		return linkcal.Entry{}, false
	}
	e.Date = date
	e.Title = strings.TrimSpace(e.Title)
	e.URL = linkcal.NormalizeURL(e.URL)
	if e.Empty() {
		return linkcal.Entry{}, false
	}

	return e, true
}

// MonthEntries returns the non-empty entries of a YYYY-MM month, oldest first.
func (s *Store) MonthEntries(calendarID, month string) []linkcal.Entry {
	s.mu.Lock()
	c := s.view(calendarID)
	var dates []string
	for date := range c.Entries {
		if strings.HasPrefix(date, month+"-") {
			dates = append(dates, date)
		}
	}
	s.mu.Unlock()

	sort.Strings(dates)
	out := make([]linkcal.Entry, 0, len(dates))
	for _, date := range dates {
		if e, ok := s.Entry(calendarID, date); ok {
			out = append(out, e)
		}
	}

	return out
}

// SetEntry records a local write. A nil or empty entry removes the date and
// leaves a pending deletion; anything else is stored and marked pending.
// The cache is persisted before returning.
func (s *Store) SetEntry(calendarID, date string, entry *linkcal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(calendarID, func(c *Cache) bool {
		if entry == nil || entry.Empty() {
			delete(c.Entries, date)
			c.Pending[date] = nil
			return true
		}
		e := *entry
		e.Date = date
		c.Entries[date] = e
		c.Pending[date] = &e
		return true
	})
}

// Stage records several local writes with a single persist. Each entry is
// handled as [Store.SetEntry] would.
func (s *Store) Stage(calendarID string, entries []linkcal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(calendarID, func(c *Cache) bool {
		for _, e := range entries {
			if e.Empty() {
				delete(c.Entries, e.Date)
				c.Pending[e.Date] = nil
				continue
			}
			c.Entries[e.Date] = e
			cp := e
			c.Pending[e.Date] = &cp
		}
		return true
	})
}

// Pending returns a snapshot of the writes awaiting the backend.
func (s *Store) Pending(calendarID string) map[string]*linkcal.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return clonePending(s.view(calendarID).Pending)
}

// ClearPending drops the confirmed writes from pending. A date is only
// cleared if its pending value is still the one that was confirmed, so a
// write made while a sync was in flight stays pending.
func (s *Store) ClearPending(calendarID string, confirmed map[string]*linkcal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(calendarID, func(c *Cache) bool {
		var cleared int
		for date, sent := range confirmed {
			current, ok := c.Pending[date]
			if !ok || !samePending(current, sent) {
				continue
			}
			delete(c.Pending, date)
			cleared++
		}
		return cleared > 0
	})
}

func samePending(a, b *linkcal.Entry) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Same(*b)
}

// Merge applies entries fetched from the backend. The backend wins, except
// for dates with a pending local write, which are left alone.
func (s *Store) Merge(calendarID string, entries []linkcal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(calendarID, func(c *Cache) bool {
		for _, e := range entries {
			if e.Date == "" {
				continue
			}
			if _, pending := c.Pending[e.Date]; pending {
				continue
			}
			e.Title = strings.TrimSpace(e.Title)
			e.URL = linkcal.NormalizeURL(e.URL)
			if e.Empty() {
				continue
			}
			c.Entries[e.Date] = e
		}
		return true
	})
}

// CurrentCalendarID returns the calendar key this machine uses, creating one
// the first time. A stored key the backend would refuse is replaced with a
// new one; its cache is left on disk.
func (s *Store) CurrentCalendarID() (string, error) {
	byts, err := s.kv.Get(calendarIDKey)
	if err != nil && !errors.Is(err, ErrNoKey) {
		return "", fmt.Errorf("error reading calendar key: %w", err)
	}
	id := strings.TrimSpace(string(byts))
	if linkcal.IsCalendarID(id) {
		return id, nil
	}
	if id != "" {
		slog.Warn("stored calendar key is invalid, creating a new one", "calendar", logger.Redact(id))
	}

	id = NewCalendarID()
	if err := s.SetCurrentCalendarID(id); err != nil {
		return "", err
	}

	return id, nil
}

// SetCurrentCalendarID makes id the calendar key this machine uses.
func (s *Store) SetCurrentCalendarID(id string) error {
	id = strings.TrimSpace(id)
	if !linkcal.IsCalendarID(id) {
		return fmt.Errorf("%w: calendar key must be 10 to 80 characters", linkcal.ErrValidation)
	}
	if err := s.kv.Set(calendarIDKey, []byte(id)); err != nil {
		return fmt.Errorf("error saving calendar key: %w", err)
	}

	return nil
}

// NewCalendarID generates a fresh calendar key.
func NewCalendarID() string {
	return uuid.NewString()
}

// The single calendar format used before calendar keys existed.
type legacyState struct {
	Entries map[string]struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"entries"`
}

// LegacyEntries returns the valid, non-empty entries of the old single
// calendar format, if any are stored.
func (s *Store) LegacyEntries() ([]linkcal.Entry, error) {
	byts, err := s.kv.Get(legacyKey)
	if errors.Is(err, ErrNoKey) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading legacy data: %w", err)
	}

	var legacy legacyState
	if err := json.Unmarshal(byts, &legacy); err != nil {
		slog.Warn("ignoring corrupt legacy data", "error", err)
		return nil, nil
	}

	var out []linkcal.Entry
	for date, v := range legacy.Entries {
		if !linkcal.IsISODate(date) {
			continue
		}
		e := linkcal.Entry{Date: date, Title: v.Title, URL: v.URL}.Normalize()
		if e.Empty() {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })

	return out, nil
}

// DropLegacy removes the old format once it's been migrated.
func (s *Store) DropLegacy() error {
	return s.kv.Delete(legacyKey)
}
