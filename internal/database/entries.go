package database

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/jdholdren/linkcal/internal/linkcal"
)

// A row of the entries table.
type entryRow struct {
	CalendarID string    `db:"calendar_id"`
	Day        string    `db:"day"`
	Title      string    `db:"title"`
	URL        string    `db:"url"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (row entryRow) entry() linkcal.Entry {
	updated := row.UpdatedAt.UTC()
	return linkcal.Entry{
		Date:      row.Day,
		Title:     row.Title,
		URL:       row.URL,
		UpdatedAt: &updated,
	}
}

func (r Repo) selectEntries(ctx context.Context, where sq.Sqlizer) ([]linkcal.Entry, error) {
	query, args, err := r.sb.
		Select("calendar_id", "day", "title", "url", "updated_at").
		From(entriesTable).
		Where(where).
		OrderBy("day ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var rows []entryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("error selecting entries: %w", err)
	}

	entries := make([]linkcal.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.entry())
	}

	return entries, nil
}

// MonthEntries returns a calendar's entries within the month, oldest day first.
func (r Repo) MonthEntries(ctx context.Context, calendarID, month string) ([]linkcal.Entry, error) {
	start, end, err := linkcal.MonthBounds(month)
	if err != nil {
		return nil, err
	}

	return r.selectEntries(ctx, sq.And{
		sq.Eq{"calendar_id": calendarID},
		sq.GtOrEq{"day": start},
		sq.Lt{"day": end},
	})
}

// AllEntries returns every entry of a calendar, oldest day first.
func (r Repo) AllEntries(ctx context.Context, calendarID string) ([]linkcal.Entry, error) {
	return r.selectEntries(ctx, sq.Eq{"calendar_id": calendarID})
}

// UpsertEntry inserts or replaces the entry for its day, stamping a fresh
// updated_at. The entry is stored as given; callers normalize it.
func (r Repo) UpsertEntry(ctx context.Context, calendarID string, entry linkcal.Entry) (linkcal.Entry, error) {
	row := entryRow{
		CalendarID: calendarID,
		Day:        entry.Date,
		Title:      entry.Title,
		URL:        entry.URL,
		UpdatedAt:  r.now(),
	}
	if err := r.upsert(ctx, r.db, row); err != nil {
		return linkcal.Entry{}, err
	}

	return row.entry(), nil
}

func (r Repo) upsert(ctx context.Context, ex sqlx.ExecerContext, row entryRow) error {
	query, args, err := r.sb.
		Insert(entriesTable).
		Columns("calendar_id", "day", "title", "url", "updated_at").
		Values(row.CalendarID, row.Day, row.Title, row.URL, row.UpdatedAt).
		Suffix("ON CONFLICT (calendar_id, day) DO UPDATE SET title = excluded.title, url = excluded.url, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %s", err)
	}
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error upserting entry: %w", err)
	}

	return nil
}

// DeleteEntry removes the row for a day, if there is one.
func (r Repo) DeleteEntry(ctx context.Context, calendarID, date string) error {
	return r.delete(ctx, r.db, calendarID, date)
}

func (r Repo) delete(ctx context.Context, ex sqlx.ExecerContext, calendarID, date string) error {
	query, args, err := r.sb.
		Delete(entriesTable).
		Where(sq.Eq{"calendar_id": calendarID, "day": date}).
		ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %s", err)
	}
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error deleting entry: %w", err)
	}

	return nil
}

// ApplyBatch writes every entry in one transaction: empty entries delete
// their day, the rest are upserted. Either all of it lands or none of it does.
//
// Entries with a malformed date are skipped.
func (r Repo) ApplyBatch(ctx context.Context, calendarID string, entries []linkcal.Entry) error {
	if len(entries) > linkcal.MaxBatchSize {
		return fmt.Errorf("batch of %d entries exceeds %d: %w", len(entries), linkcal.MaxBatchSize, linkcal.ErrValidation)
	}

	now := r.now()
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, e := range entries {
			if !linkcal.IsISODate(e.Date) {
				continue
			}
			if e.Empty() {
				if err := r.delete(ctx, tx, calendarID, e.Date); err != nil {
					return err
				}
				continue
			}

			row := entryRow{
				CalendarID: calendarID,
				Day:        e.Date,
				Title:      e.Title,
				URL:        e.URL,
				UpdatedAt:  now,
			}
			if err := r.upsert(ctx, tx, row); err != nil {
				return err
			}
		}

		return nil
	})
}
