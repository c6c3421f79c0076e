// Package migrations embeds the run-history schema for every supported
// database driver.
package migrations

import (
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Up applies every pending migration for driver ("postgres" or "sqlite")
// to db. An already up-to-date schema is not an error.
func Up(db *sql.DB, driver string) error {
	m, err := New(db, driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrapf(err, "failed to apply %s migrations", driver)
	}
	return nil
}

// New returns a migrator reading the embedded scripts for driver.
func New(db *sql.DB, driver string) (*migrate.Migrate, error) {
	src, err := iofs.New(files, driver)
	if err != nil {
		return nil, errors.Wrapf(err, "no migrations for driver %q", driver)
	}

	var target database.Driver
	switch driver {
	case "postgres":
		target, err = postgres.WithInstance(db, &postgres.Config{})
	case "sqlite":
		target, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return nil, errors.Errorf("unsupported migration driver %q", driver)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s migration target", driver)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize migrations")
	}
	return m, nil
}
