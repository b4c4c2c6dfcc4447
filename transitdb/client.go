// Package transitdb is the durable static data store: per-agency GTFS
// entities in SQLite with id and spatial lookup. It is written only by the
// data loader and read by the locator, planner, and realtime merger.
// Upserts are keyed by natural ids, so a read interleaved with a load may
// observe the prior version of an agency's data but never a torn record.
package transitdb

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver
	"wayfinder.transitlab.org/internal/appconf"
	"wayfinder.transitlab.org/internal/logging"
)

//go:embed schema.sql
var ddl string

// Client is the main entry point for the store.
type Client struct {
	config  Config
	DB      *sql.DB
	Queries *Queries
}

// NewClient opens (creating if necessary) the store described by config.
func NewClient(config Config) (*Client, error) {
	db, err := createDB(config)
	if err != nil {
		return nil, fmt.Errorf("unable to create DB: %w", err)
	}
	if config.verbose {
		logging.LogOperation(slog.Default().With(slog.String("component", "transitdb")),
			"store_tables_created", slog.String("path", config.DBPath))
	}

	return &Client{
		config:  config,
		DB:      db,
		Queries: New(db),
	}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) GetDBPath() string {
	return c.config.DBPath
}

// createDB opens the SQLite database and applies schema and tuning.
func createDB(config Config) (*sql.DB, error) {
	if config.Env == appconf.Test && config.DBPath != ":memory:" {
		return nil, fmt.Errorf("test database must use in-memory storage, got path: %s", config.DBPath)
	}

	db, err := sql.Open("sqlite3", config.DBPath)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := configureSQLitePerformance(ctx, db); err != nil {
		return nil, fmt.Errorf("error configuring SQLite performance: %w", err)
	}

	if err := performDatabaseMigration(ctx, db); err != nil {
		return nil, fmt.Errorf("error performing database migration: %w", err)
	}

	configureConnectionPool(db, config)

	return db, nil
}

func performDatabaseMigration(ctx context.Context, db *sql.DB) error {
	statements := strings.Split(ddl, "-- migrate")
	for _, stmt := range statements {
		trimmedStmt := strings.TrimSpace(stmt)
		if trimmedStmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, trimmedStmt); err != nil {
			return fmt.Errorf("error executing DDL statement [%s]: %w", trimmedStmt, err)
		}
	}
	return nil
}

// configureSQLitePerformance applies PRAGMA settings suited to bulk static
// imports and read-heavy query traffic.
func configureSQLitePerformance(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		// 64MB cache (negative value means KB)
		"PRAGMA cache_size=-64000",
		"PRAGMA temp_store=MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// configureConnectionPool sets pool limits appropriate for SQLite.
// Each connection to a :memory: database is a separate database instance,
// so in-memory stores are limited to a single connection.
func configureConnectionPool(db *sql.DB, config Config) {
	if config.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
}
