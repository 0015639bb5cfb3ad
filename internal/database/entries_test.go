package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/linkcal/internal/linkcal"
	"github.com/jdholdren/linkcal/internal/migrations"
)

const testCalendar = "abcdefghij"

func newTestRepo(t *testing.T) (Repo, *sqlx.DB) {
	t.Helper()

	dbx, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })
	require.NoError(t, migrations.Run(dbx))

	repo := New(dbx)
	repo.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	return repo, dbx
}

func countRows(t *testing.T, dbx *sqlx.DB) int {
	t.Helper()

	var n int
	require.NoError(t, dbx.Get(&n, "SELECT COUNT(*) FROM link_calendar_entries;"))
	return n
}

func TestUpsertEntry(t *testing.T) {
	var (
		ctx     = context.Background()
		repo, _ = newTestRepo(t)
	)

	got, err := repo.UpsertEntry(ctx, testCalendar, linkcal.Entry{Date: "2024-03-05", Title: "Talk", URL: "https://example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", got.Date)
	require.NotNil(t, got.UpdatedAt)

	// Same day again replaces rather than duplicates
	repo.now = func() time.Time { return time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC) }
	_, err = repo.UpsertEntry(ctx, testCalendar, linkcal.Entry{Date: "2024-03-05", Title: "Other talk"})
	require.NoError(t, err)

	entries, err := repo.MonthEntries(ctx, testCalendar, "2024-03")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Other talk", entries[0].Title)
	assert.Equal(t, "", entries[0].URL)
	assert.True(t, entries[0].UpdatedAt.Equal(time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)))
}

func TestMonthEntries(t *testing.T) {
	var (
		ctx     = context.Background()
		repo, _ = newTestRepo(t)
	)

	for _, day := range []string{"2024-02-29", "2024-03-31", "2024-03-01", "2024-04-01"} {
		_, err := repo.UpsertEntry(ctx, testCalendar, linkcal.Entry{Date: day, Title: day})
		require.NoError(t, err)
	}
	_, err := repo.UpsertEntry(ctx, "zyxwvutsrq", linkcal.Entry{Date: "2024-03-10", Title: "someone else"})
	require.NoError(t, err)

	entries, err := repo.MonthEntries(ctx, testCalendar, "2024-03")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2024-03-01", entries[0].Date)
	assert.Equal(t, "2024-03-31", entries[1].Date)

	_, err = repo.MonthEntries(ctx, testCalendar, "2024-3")
	assert.ErrorIs(t, err, linkcal.ErrValidation)

	all, err := repo.AllEntries(ctx, testCalendar)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "2024-02-29", all[0].Date)
	assert.Equal(t, "2024-04-01", all[3].Date)
}

func TestDeleteEntry(t *testing.T) {
	var (
		ctx       = context.Background()
		repo, dbx = newTestRepo(t)
	)

	_, err := repo.UpsertEntry(ctx, testCalendar, linkcal.Entry{Date: "2024-03-05", Title: "Talk"})
	require.NoError(t, err)
	require.NoError(t, repo.DeleteEntry(ctx, testCalendar, "2024-03-05"))
	assert.Equal(t, 0, countRows(t, dbx))

	// Deleting what isn't there is fine
	require.NoError(t, repo.DeleteEntry(ctx, testCalendar, "2024-03-05"))
}

func TestApplyBatch(t *testing.T) {
	var (
		ctx       = context.Background()
		repo, dbx = newTestRepo(t)
	)

	_, err := repo.UpsertEntry(ctx, testCalendar, linkcal.Entry{Date: "2024-03-01", Title: "going away"})
	require.NoError(t, err)

	err = repo.ApplyBatch(ctx, testCalendar, []linkcal.Entry{
		{Date: "2024-03-01"}, // delete
		{Date: "2024-03-02", Title: "two"},
		{Date: "2024-03-03", URL: "https://example.com/"},
		{Date: "not-a-date", Title: "skipped"},
	})
	require.NoError(t, err)

	entries, err := repo.AllEntries(ctx, testCalendar)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2024-03-02", entries[0].Date)
	assert.Equal(t, "2024-03-03", entries[1].Date)
	assert.Equal(t, 2, countRows(t, dbx))
}

func TestApplyBatch_TooLarge(t *testing.T) {
	var (
		ctx       = context.Background()
		repo, dbx = newTestRepo(t)
	)

	batch := make([]linkcal.Entry, linkcal.MaxBatchSize+1)
	for i := range batch {
		batch[i] = linkcal.Entry{Date: fmt.Sprintf("2024-01-%02d", i%28+1), Title: "x"}
	}

	err := repo.ApplyBatch(ctx, testCalendar, batch)
	assert.ErrorIs(t, err, linkcal.ErrValidation)
	assert.Equal(t, 0, countRows(t, dbx))
}

func TestApplyBatch_RollsBack(t *testing.T) {
	var (
		ctx       = context.Background()
		repo, dbx = newTestRepo(t)
	)

	// Make the second write of the batch fail
	_, err := dbx.Exec(`CREATE TRIGGER fail_on_boom BEFORE INSERT ON link_calendar_entries
	WHEN NEW.title = 'boom'
	BEGIN
		SELECT RAISE(ABORT, 'boom');
	END;`)
	require.NoError(t, err)

	err = repo.ApplyBatch(ctx, testCalendar, []linkcal.Entry{
		{Date: "2024-03-01", Title: "fine"},
		{Date: "2024-03-02", Title: "boom"},
	})
	require.Error(t, err)
	assert.Equal(t, 0, countRows(t, dbx))
}
