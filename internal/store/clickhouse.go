package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/golang-migrate/migrate/v4/database"
	migrateclickhouse "github.com/golang-migrate/migrate/v4/database/clickhouse"
	"github.com/sirupsen/logrus"
)

// OpenClickHouse connects to the central results server. dsn is a
// clickhouse:// URL; its database must already exist.
func OpenClickHouse(dsn string, log logrus.FieldLogger) (*Store, error) {
	options, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing clickhouse dsn: %w", err)
	}

	if options.Auth.Database == "" {
		options.Auth.Database = "default"
	}

	options.DialTimeout = 30 * time.Second
	options.MaxOpenConns = 5
	options.MaxIdleConns = 5
	options.ConnMaxLifetime = 10 * time.Minute
	options.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}

	db := clickhouse.OpenDB(options)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	dbName := options.Auth.Database

	return &Store{
		log:        log.WithFields(logrus.Fields{"component": "store", "backend": "clickhouse"}),
		db:         db,
		name:       "clickhouse",
		dbName:     dbName,
		migrations: "clickhouse",
		batchPerTx: true,
		driver: func(db *sql.DB) (database.Driver, error) {
			return migrateclickhouse.WithInstance(db, &migrateclickhouse.Config{
				DatabaseName:          dbName,
				MigrationsTable:       migrationsTable,
				MultiStatementEnabled: true,
				MultiStatementMaxSize: 1024 * 1024,
			})
		},
	}, nil
}
