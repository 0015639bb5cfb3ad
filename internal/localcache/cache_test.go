package localcache

import (
	"errors"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/linkcal/internal/linkcal"
)

const testCalendar = "abcdefghij"

func TestStore_SetEntry(t *testing.T) {
	kv := NewMemoryKV()
	s := New(kv)

	require.NoError(t, s.SetEntry(testCalendar, "2024-03-05", &linkcal.Entry{Title: "Talk", URL: "https://example.com/"}))

	e, ok := s.Entry(testCalendar, "2024-03-05")
	require.True(t, ok)
	assert.Equal(t, "Talk", e.Title)
	assert.Equal(t, "2024-03-05", e.Date)

	pending := s.Pending(testCalendar)
	require.Contains(t, pending, "2024-03-05")
	require.NotNil(t, pending["2024-03-05"])

	// A fresh store over the same kv sees the persisted write
	reloaded := New(kv).Get(testCalendar)
	assert.Equal(t, "Talk", reloaded.Entries["2024-03-05"].Title)
	assert.Contains(t, reloaded.Pending, "2024-03-05")

	// Clearing leaves a tombstone
	require.NoError(t, s.SetEntry(testCalendar, "2024-03-05", &linkcal.Entry{}))
	_, ok = s.Entry(testCalendar, "2024-03-05")
	assert.False(t, ok)
	pending = s.Pending(testCalendar)
	require.Contains(t, pending, "2024-03-05")
	assert.Nil(t, pending["2024-03-05"])

	reloaded = New(kv).Get(testCalendar)
	assert.NotContains(t, reloaded.Entries, "2024-03-05")
	require.Contains(t, reloaded.Pending, "2024-03-05")
	assert.Nil(t, reloaded.Pending["2024-03-05"])
}

func TestStore_CorruptStateIsEmpty(t *testing.T) {
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(cacheKey(testCalendar), []byte("{not json")))

	c := New(kv).Get(testCalendar)
	assert.Empty(t, c.Entries)
	assert.Empty(t, c.Pending)
	assert.NotNil(t, c.Entries)
	assert.NotNil(t, c.Pending)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := New(NewMemoryKV())
	require.NoError(t, s.SetEntry(testCalendar, "2024-03-05", &linkcal.Entry{Title: "Talk"}))

	c := s.Get(testCalendar)
	c.Entries["2024-03-06"] = linkcal.Entry{Title: "Sneaky"}
	c.Pending["2024-03-05"].Title = "Changed"

	_, ok := s.Entry(testCalendar, "2024-03-06")
	assert.False(t, ok)
	assert.Equal(t, "Talk", s.Pending(testCalendar)["2024-03-05"].Title)
}

func TestStore_ClearPendingKeepsNewerWrites(t *testing.T) {
	s := New(NewMemoryKV())
	require.NoError(t, s.SetEntry(testCalendar, "2024-03-05", &linkcal.Entry{Title: "First"}))
	require.NoError(t, s.SetEntry(testCalendar, "2024-03-06", nil))

	snapshot := s.Pending(testCalendar)

	// Written while the snapshot was being sent
	require.NoError(t, s.SetEntry(testCalendar, "2024-03-05", &linkcal.Entry{Title: "Second"}))

	require.NoError(t, s.ClearPending(testCalendar, snapshot))

	pending := s.Pending(testCalendar)
	assert.Len(t, pending, 1)
	require.Contains(t, pending, "2024-03-05")
	assert.Equal(t, "Second", pending["2024-03-05"].Title)
}

func TestStore_MergeSkipsPending(t *testing.T) {
	s := New(NewMemoryKV())
	require.NoError(t, s.SetEntry(testCalendar, "2024-03-05", &linkcal.Entry{Title: "Local"}))
	require.NoError(t, s.SetEntry(testCalendar, "2024-03-07", nil))

	require.NoError(t, s.Merge(testCalendar, []linkcal.Entry{
		{Date: "2024-03-05", Title: "Remote"},
		{Date: "2024-03-06", Title: "From cloud", URL: "https://example.com/"},
		{Date: "2024-03-07", Title: "Deleted locally"},
		{Date: "2024-03-08"},
	}))

	entries := s.MonthEntries(testCalendar, "2024-03")
	require.Len(t, entries, 2)
	assert.Equal(t, "Local", entries[0].Title)
	assert.Equal(t, "2024-03-06", entries[1].Date)
	assert.Equal(t, "From cloud", entries[1].Title)
}

func TestStore_MonthEntries(t *testing.T) {
	s := New(NewMemoryKV())
	require.NoError(t, s.Merge(testCalendar, []linkcal.Entry{
		{Date: "2024-04-01", Title: "April"},
		{Date: "2024-03-31", Title: "End"},
		{Date: "2024-03-01", Title: "Start"},
	}))

	entries := s.MonthEntries(testCalendar, "2024-03")
	require.Len(t, entries, 2)
	assert.Equal(t, "Start", entries[0].Title)
	assert.Equal(t, "End", entries[1].Title)
	assert.Empty(t, s.MonthEntries(testCalendar, "2024-05"))
}

func TestStore_CalendarsAreSeparate(t *testing.T) {
	s := New(NewMemoryKV())
	require.NoError(t, s.SetEntry(testCalendar, "2024-03-05", &linkcal.Entry{Title: "Mine"}))

	other := s.Get("zyxwvutsrq")
	assert.Empty(t, other.Entries)
	assert.Empty(t, other.Pending)
}

func TestStore_CurrentCalendarID(t *testing.T) {
	kv := NewMemoryKV()
	s := New(kv)

	id, err := s.CurrentCalendarID()
	require.NoError(t, err)
	assert.True(t, linkcal.IsCalendarID(id))

	again, err := New(kv).CurrentCalendarID()
	require.NoError(t, err)
	assert.Equal(t, id, again)

	require.NoError(t, s.SetCurrentCalendarID("  shared-calendar-key  "))
	id, err = s.CurrentCalendarID()
	require.NoError(t, err)
	assert.Equal(t, "shared-calendar-key", id)
}

func TestStore_LegacyEntries(t *testing.T) {
	kv := NewMemoryKV()
	s := New(kv)

	entries, err := s.LegacyEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, kv.Set(legacyKey, []byte(`{"entries":{
		"2024-03-05":{"title":"Talk","url":"example.com"},
		"2024-02-30":{"title":"Bad date"},
		"2024-03-01":{"title":"  ","url":""}
	}}`)))

	entries, err = s.LegacyEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2024-03-05", entries[0].Date)
	assert.Equal(t, "https://example.com/", entries[0].URL)

	require.NoError(t, s.DropLegacy())
	entries, err = s.LegacyEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiskKV(t *testing.T) {
	kv := NewDiskKV(t.TempDir())

	_, err := kv.Get("linkCalendar.cache.v2.some/odd key")
	assert.ErrorIs(t, err, ErrNoKey)

	require.NoError(t, kv.Set("linkCalendar.cache.v2.some/odd key", []byte(`{"entries":{}}`)))
	byts, err := kv.Get("linkCalendar.cache.v2.some/odd key")
	require.NoError(t, err)
	assert.Equal(t, `{"entries":{}}`, string(byts))

	require.NoError(t, kv.Delete("linkCalendar.cache.v2.some/odd key"))
	require.NoError(t, kv.Delete("linkCalendar.cache.v2.some/odd key"))
	_, err = kv.Get("linkCalendar.cache.v2.some/odd key")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestStore_OverDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, New(NewDiskKV(dir)).SetEntry(testCalendar, "2024-03-05", &linkcal.Entry{Title: "Kept"}))

	e, ok := New(NewDiskKV(dir)).Entry(testCalendar, "2024-03-05")
	require.True(t, ok)
	assert.Equal(t, "Kept", e.Title)
}

func TestStore_Stage(t *testing.T) {
	s := New(NewMemoryKV())
	require.NoError(t, s.SetEntry(testCalendar, "2024-03-07", &linkcal.Entry{Title: "Old"}))
	require.NoError(t, s.ClearPending(testCalendar, s.Pending(testCalendar)))

	require.NoError(t, s.Stage(testCalendar, []linkcal.Entry{
		{Date: "2024-03-05", Title: "One"},
		{Date: "2024-03-06", URL: "https://example.com/"},
		{Date: "2024-03-07"},
	}))

	c := s.Get(testCalendar)
	assert.Len(t, c.Entries, 2)
	assert.Len(t, c.Pending, 3)
	assert.Nil(t, c.Pending["2024-03-07"])
	assert.Equal(t, "One", c.Pending["2024-03-05"].Title)
}

// flakyKV fails the next reads or writes it's told to.
type flakyKV struct {
	*MemoryKV

	mu       sync.Mutex
	failGets int
	failSets int
}

func (f *flakyKV) Get(key string) ([]byte, error) {
	f.mu.Lock()
	if f.failGets > 0 {
		f.failGets--
		f.mu.Unlock()
		return nil, syscall.EIO
	}
	f.mu.Unlock()

	return f.MemoryKV.Get(key)
}

func (f *flakyKV) Set(key string, val []byte) error {
	f.mu.Lock()
	if f.failSets > 0 {
		f.failSets--
		f.mu.Unlock()
		return syscall.ENOSPC
	}
	f.mu.Unlock()

	return f.MemoryKV.Set(key, val)
}

func TestStore_ReadErrorKeepsPersistedPending(t *testing.T) {
	kv := &flakyKV{MemoryKV: NewMemoryKV()}
	seed := New(kv)
	require.NoError(t, seed.SetEntry(testCalendar, "2024-03-05", &linkcal.Entry{Title: "One"}))
	require.NoError(t, seed.SetEntry(testCalendar, "2024-03-06", &linkcal.Entry{Title: "Two"}))

	kv.failGets = 1
	s := New(kv)
	err := s.SetEntry(testCalendar, "2024-03-09", &linkcal.Entry{Title: "Three"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, syscall.EIO))

	// The record on disk is untouched and a later read recovers it
	c := New(kv).Get(testCalendar)
	assert.Len(t, c.Entries, 2)
	assert.Len(t, c.Pending, 2)

	require.NoError(t, s.SetEntry(testCalendar, "2024-03-09", &linkcal.Entry{Title: "Three"}))
	c = New(kv).Get(testCalendar)
	assert.Len(t, c.Entries, 3)
	assert.Len(t, c.Pending, 3)
}

func TestStore_ReadErrorShowsEmptyWithoutCaching(t *testing.T) {
	kv := &flakyKV{MemoryKV: NewMemoryKV()}
	require.NoError(t, New(kv).SetEntry(testCalendar, "2024-03-05", &linkcal.Entry{Title: "One"}))

	kv.failGets = 1
	s := New(kv)
	assert.Empty(t, s.Pending(testCalendar))
	assert.Len(t, s.Pending(testCalendar), 1)
}

func TestStore_FailedSaveLeavesMemoryUnchanged(t *testing.T) {
	kv := &flakyKV{MemoryKV: NewMemoryKV()}
	s := New(kv)
	require.NoError(t, s.SetEntry(testCalendar, "2024-03-05", &linkcal.Entry{Title: "One"}))

	kv.failSets = 1
	require.Error(t, s.SetEntry(testCalendar, "2024-03-05", &linkcal.Entry{Title: "Changed"}))
	e, ok := s.Entry(testCalendar, "2024-03-05")
	require.True(t, ok)
	assert.Equal(t, "One", e.Title)

	kv.failSets = 1
	require.Error(t, s.Stage(testCalendar, []linkcal.Entry{{Date: "2024-03-06", Title: "Two"}}))
	assert.Len(t, s.Pending(testCalendar), 1)

	kv.failSets = 1
	require.Error(t, s.ClearPending(testCalendar, s.Pending(testCalendar)))
	assert.Len(t, s.Pending(testCalendar), 1)

	// Memory still matches what's persisted
	assert.Equal(t, New(kv).Get(testCalendar), s.Get(testCalendar))
}

func TestStore_InvalidStoredCalendarID(t *testing.T) {
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(calendarIDKey, []byte("short")))
	s := New(kv)

	id, err := s.CurrentCalendarID()
	require.NoError(t, err)
	assert.True(t, linkcal.IsCalendarID(id))
	assert.NotEqual(t, "short", id)

	again, err := s.CurrentCalendarID()
	require.NoError(t, err)
	assert.Equal(t, id, again)

	assert.ErrorIs(t, s.SetCurrentCalendarID("short"), linkcal.ErrValidation)
	assert.ErrorIs(t, s.SetCurrentCalendarID(" "), linkcal.ErrValidation)
}
