package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/jdholdren/linkcal/internal/linkcal"
	"github.com/jdholdren/linkcal/internal/logger"
	"github.com/jdholdren/linkcal/internal/remote"
)

// MigrateLegacy moves entries saved in the old single calendar format into
// the current calendar and flushes them. It returns how many were moved.
//
// If the import is declined the old data is left in place and offered again
// next time.
func (s *Syncer) MigrateLegacy(ctx context.Context) (int, error) {
	entries, err := s.store.LegacyEntries()
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if s.confirm != nil && !s.confirm(len(entries)) {
		return 0, nil
	}

	calendarID := s.CalendarID()
	if err := s.store.Stage(calendarID, entries); err != nil {
		return 0, err
	}
	if err := s.store.DropLegacy(); err != nil {
		return 0, fmt.Errorf("error removing legacy data: %w", err)
	}
	slog.InfoContext(logger.Calendar(ctx, calendarID), "migrated legacy entries", "count", len(entries))

	if err := s.FlushPending(ctx); err != nil && !remote.IsConnectivity(err) {
		return len(entries), err
	}

	return len(entries), nil
}

// Export dumps the current calendar. When the backend can't be reached the
// local cache is dumped instead, and local reports that.
func (s *Syncer) Export(ctx context.Context) (exp linkcal.Export, local bool, err error) {
	calendarID := s.CalendarID()

	exp, err = s.remote.Export(ctx, calendarID)
	if err == nil {
		return exp, false, nil
	}
	if !remote.IsConnectivity(err) {
		return linkcal.Export{}, false, err
	}
	s.fail(logger.Calendar(ctx, calendarID), msgError, err)

	cache := s.store.Get(calendarID)
	exp = linkcal.Export{
		ExportedAt: s.now().UTC(),
		CalendarID: calendarID,
		Entries:    make([]linkcal.Entry, 0, len(cache.Entries)),
		Pending:    cache.Pending,
	}
	for date, e := range cache.Entries {
		e.Date = date
		exp.Entries = append(exp.Entries, e)
	}
	sort.Slice(exp.Entries, func(i, j int) bool { return exp.Entries[i].Date < exp.Entries[j].Date })

	return exp, true, nil
}

type importEntry struct {
	Date  string `json:"date"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ParseImport reads an export file. Its entries may be a list or an object
// keyed by date. Entries with a bad date or nothing in them are dropped, and
// a date given twice keeps its last value.
func ParseImport(r io.Reader) ([]linkcal.Entry, error) {
	var file struct {
		Entries json.RawMessage `json:"entries"`
	}
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: invalid file format", linkcal.ErrValidation)
	}

	raw := bytes.TrimSpace(file.Entries)
	var items []importEntry
	switch {
	case len(raw) > 0 && raw[0] == '[':
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: invalid file format", linkcal.ErrValidation)
		}
	case len(raw) > 0 && raw[0] == '{':
		var byDate map[string]*importEntry
		if err := json.Unmarshal(raw, &byDate); err != nil {
			return nil, fmt.Errorf("%w: invalid file format", linkcal.ErrValidation)
		}
		for date, e := range byDate {
			if e == nil {
				continue
			}
			e.Date = date
			items = append(items, *e)
		}
	default:
		return nil, fmt.Errorf("%w: invalid file format", linkcal.ErrValidation)
	}

	byDate := make(map[string]linkcal.Entry, len(items))
	for _, item := range items {
		date := strings.TrimSpace(item.Date)
		if !linkcal.IsISODate(date) {
			continue
		}
		e := linkcal.Entry{Date: date, Title: item.Title, URL: item.URL}.Normalize()
		if e.Empty() {
			continue
		}
		byDate[date] = e
	}

	out := make([]linkcal.Entry, 0, len(byDate))
	for _, e := range byDate {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })

	return out, nil
}

// Import merges an export file into the current calendar and uploads it. The
// entries are saved locally first, so if the upload fails they stay pending.
// It returns how many entries were imported.
func (s *Syncer) Import(ctx context.Context, r io.Reader) (int, error) {
	entries, err := ParseImport(r)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	calendarID := s.CalendarID()
	ctx = logger.Calendar(ctx, calendarID)
	if err := s.store.Stage(calendarID, entries); err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "importing entries", "count", len(entries))

	s.setStatus(StateSyncing, msgSyncing, nil)
	for start := 0; start < len(entries); start += s.batchSize {
		chunk := entries[start:min(start+s.batchSize, len(entries))]
		if err := s.remote.UpsertBatch(ctx, calendarID, chunk); err != nil {
			s.fail(ctx, msgError, err)
			return len(entries), fmt.Errorf("error uploading import: %w", err)
		}

		sent := make(map[string]*linkcal.Entry, len(chunk))
		for i := range chunk {
			sent[chunk[i].Date] = &chunk[i]
		}
		if err := s.store.ClearPending(calendarID, sent); err != nil {
			return len(entries), err
		}
	}
	s.setStatus(StateSynced, msgSynced, nil)

	return len(entries), nil
}
