// Package migrations holds the schema for the entries table, one directory
// per supported database.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

//go:embed sqlite/*.sql postgres/*.sql
var migrationsFS embed.FS

// Run performs all migrations for the database behind dbx, picking the
// schema by its driver name.
func Run(dbx *sqlx.DB) error {
	var (
		dir      string
		dbName   string
		instance database.Driver
		err      error
	)
	switch dbx.DriverName() {
	case "sqlite":
		dir, dbName = "sqlite", "sqlite"
		instance, err = sqlite.WithInstance(dbx.DB, &sqlite.Config{})
	case "pgx":
		dir, dbName = "postgres", "pgx5"
		instance, err = pgxmigrate.WithInstance(dbx.DB, &pgxmigrate.Config{})
	default:
		return fmt.Errorf("no migrations for driver %q", dbx.DriverName())
	}
	if err != nil {
		return fmt.Errorf("error creating %s instance for migration: %s", dbName, err)
	}

	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("error opening migrations dir: %s", err)
	}
	d, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("error creating migrations source: %s", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", d, dbName, instance)
	if err != nil {
		return fmt.Errorf("error creating migrator: %s", err)
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("error migrating: %s", err)
	}
	slog.Info("migrated", "driver", dbx.DriverName())

	return nil
}
