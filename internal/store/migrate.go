package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed migrations
var migrationFiles embed.FS

const migrationsTable = "ate_schema_migrations"

// runMigrations applies the embedded migrations under migrations/<dir>.
func runMigrations(ctx context.Context, log logrus.FieldLogger, dir, dbName string, dbDriver database.Driver) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	sourceFS, err := fs.Sub(migrationFiles, "migrations/"+dir)
	if err != nil {
		return fmt.Errorf("opening %s migrations: %w", dir, err)
	}

	log.WithField("database", dbName).Debug("running migrations, please wait")

	sourceDriver, err := iofs.New(sourceFS, ".")
	if err != nil {
		return fmt.Errorf("creating source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbName, dbDriver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			done <- fmt.Errorf("running migrations: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case <-ctx.Done():
		m.GracefulStop <- true
		return fmt.Errorf("migration canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return err
		}
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading migration version: %w", err)
	}

	log.WithFields(logrus.Fields{
		"database": dbName,
		"version":  version,
		"dirty":    dirty,
	}).Debug("migrations completed successfully")

	return nil
}
