// Package dialect provides SQL fragment helpers for SQLite/PostgreSQL portability.
package dialect

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const (
	SQLite3 = "sqlite3"
	PGX     = "pgx"
)

// IsPostgres returns true if the driver is PostgreSQL (pgx).
func IsPostgres(driver string) bool {
	return driver == PGX
}

// SerialPK returns the column definition for an auto-incrementing primary key.
//
//	SQLite:   INTEGER PRIMARY KEY AUTOINCREMENT
//	Postgres: BIGSERIAL PRIMARY KEY
func SerialPK(driver string) string {
	if IsPostgres(driver) {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// Like returns the SQL LIKE operator appropriate for the driver.
//
//	SQLite:  LIKE (case-insensitive for ASCII by default)
//	Postgres: ILIKE (case-insensitive)
func Like(driver string) string {
	if IsPostgres(driver) {
		return "ILIKE"
	}
	return "LIKE"
}

// InsertReturningID executes an INSERT and returns the auto-generated ID.
//
//	Postgres: appends RETURNING id and scans the result.
//	SQLite:   uses LastInsertId() from the exec result.
func InsertReturningID(ctx context.Context, db *sqlx.DB, query string, args ...any) (int64, error) {
	if IsPostgres(db.DriverName()) {
		var id int64
		err := db.QueryRowContext(ctx, db.Rebind(query+" RETURNING id"), args...).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert returning id: %w", err)
		}
		return id, nil
	}

	result, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}
