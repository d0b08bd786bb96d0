// Package db opens the execution-history database. SQLite is the default
// and needs no external service; Postgres is available for deployments that
// already run one.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/agentrun/agentrun/internal/common/config"
	"github.com/agentrun/agentrun/internal/db/dialect"
)

const (
	busyTimeout = 5 * time.Second

	// WAL allows many readers next to the single writer.
	sqliteReaderConns = 4

	pgMaxConns  = 25
	pgIdleConns = 5
)

// Open opens the execution-history database described by the configuration
// and returns a Pool. SQLite gets a single-connection writer plus a read-only
// reader pool; Postgres shares one pgx-backed pool for both roles.
func Open(cfg config.HistoryConfig) (*Pool, error) {
	switch cfg.Driver {
	case dialect.SQLite3, "":
		writerDB, err := openSQLiteWriter(cfg.Path)
		if err != nil {
			return nil, err
		}
		// The writer creates the file; the read-only pool needs it to exist.
		readerDB, err := openSQLiteReader(cfg.Path)
		if err != nil {
			_ = writerDB.Close()
			return nil, err
		}
		return &Pool{
			writer: sqlx.NewDb(writerDB, dialect.SQLite3),
			reader: sqlx.NewDb(readerDB, dialect.SQLite3),
		}, nil
	case dialect.PGX:
		pgDB, err := openPostgres(cfg.DSN)
		if err != nil {
			return nil, err
		}
		shared := sqlx.NewDb(pgDB, dialect.PGX)
		return &Pool{writer: shared, reader: shared}, nil
	default:
		return nil, fmt.Errorf("unsupported history driver %q", cfg.Driver)
	}
}

// openSQLiteWriter opens the write side: one connection, WAL journal, a busy
// timeout so concurrent resume recording waits instead of failing with
// SQLITE_BUSY.
func openSQLiteWriter(dbPath string) (*sql.DB, error) {
	path := absSQLitePath(dbPath)
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to prepare history database dir: %w", err)
		}
	}
	if err := touchFile(path); err != nil {
		return nil, fmt.Errorf("failed to create history database file: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_mode=rwc&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL&_cache=shared",
		path, int(busyTimeout/time.Millisecond),
	)
	writerDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	writerDB.SetMaxOpenConns(1)
	writerDB.SetMaxIdleConns(1)
	return writerDB, nil
}

// openSQLiteReader opens a small pool of read-only connections for history
// queries. journal_mode and synchronous are database-level settings owned by
// the writer.
func openSQLiteReader(dbPath string) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_mode=ro&_busy_timeout=%d&_cache=shared",
		absSQLitePath(dbPath), int(busyTimeout/time.Millisecond),
	)
	readerDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open read-only history database: %w", err)
	}
	readerDB.SetMaxOpenConns(sqliteReaderConns)
	readerDB.SetMaxIdleConns(sqliteReaderConns)
	return readerDB, nil
}

func openPostgres(dsn string) (*sql.DB, error) {
	pgDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	pgDB.SetMaxOpenConns(pgMaxConns)
	pgDB.SetMaxIdleConns(pgIdleConns)
	if err := pgDB.Ping(); err != nil {
		_ = pgDB.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}
	return pgDB, nil
}

func touchFile(path string) error {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	return file.Close()
}

func absSQLitePath(dbPath string) string {
	if dbPath == "" {
		return dbPath
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return dbPath
	}
	return abs
}
