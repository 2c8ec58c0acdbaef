package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"fpdataset/internal/monitoring"
)

//go:embed migrations
var migrationsFS embed.FS

// MigrateUp creates the source tables and their bounding-box indexes.
// Oracle is not supported.
func (d *Database) MigrateUp() error {
	m, err := d.newMigrate()
	if err != nil {
		return err
	}
	// Closing m would close the shared *sql.DB.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	monitoring.Logf("schema at version %d (dirty=%v)", version, dirty)
	return nil
}

// MigrateVersion returns the applied schema version. It is 0 when nothing
// has been applied yet.
func (d *Database) MigrateVersion() (uint, bool, error) {
	m, err := d.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (d *Database) newMigrate() (*migrate.Migrate, error) {
	var (
		driver migratedb.Driver
		err    error
	)
	switch d.dialect.name {
	case "sqlite":
		driver, err = sqlite.WithInstance(d.db, &sqlite.Config{})
	case "postgres":
		driver, err = postgres.WithInstance(d.db, &postgres.Config{})
	case "mysql":
		// Each migration file is sent as one query; see mysqlDSN.
		driver, err = migratemysql.WithInstance(d.db, &migratemysql.Config{})
	default:
		return nil, fmt.Errorf("%w: migrations for %q", ErrUnsupportedDriver, d.dialect.name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s migration driver: %w", d.dialect.name, err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+d.dialect.name)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, d.dialect.name, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}
