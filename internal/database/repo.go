// Package database stores calendar entries in sqlite or postgres.
package database

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/jdholdren/linkcal/internal/linkcal"
)

// Ensure Repo implements the Repository interface
var _ linkcal.Repository = (*Repo)(nil)

const entriesTable = "link_calendar_entries"

type Repo struct {
	db  *sqlx.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

// New creates a repo over dbx, choosing placeholders that fit its driver.
func New(dbx *sqlx.DB) Repo {
	sb := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if sqlx.BindType(dbx.DriverName()) == sqlx.DOLLAR {
		sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}

	return Repo{
		db:  dbx,
		sb:  sb,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Ping checks that the database is answering.
func (r Repo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("error pinging database: %w", err)
	}

	return nil
}

// Runs fn inside a transaction, rolling back if it errors.
func (r Repo) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback() // No-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}
