package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
	"github.com/sirupsen/logrus"
)

const (
	dirPermissions    = 0o750
	busyTimeoutMS     = 5000
	connectionTimeout = 5 * time.Second
)

// OpenSQLite opens or creates the station's local results file in WAL mode.
func OpenSQLite(path string, log logrus.FieldLogger) (*Store, error) {
	if path == "" {
		return nil, ErrNoPath
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating results directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL", path, busyTimeoutMS)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// One writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite %s: %w", path, err)
	}

	return &Store{
		log:        log.WithFields(logrus.Fields{"component": "store", "backend": "sqlite"}),
		db:         db,
		name:       "sqlite",
		dbName:     filepath.Base(path),
		migrations: "sqlite",
		driver: func(db *sql.DB) (database.Driver, error) {
			return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: migrationsTable})
		},
	}, nil
}
