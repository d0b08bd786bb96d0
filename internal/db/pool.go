package db

import "github.com/jmoiron/sqlx"

// Pool splits reads from writes. Under SQLite the writer is a single
// connection and the reader is a read-only pool that proceeds concurrently
// through WAL snapshots. Under Postgres both sides are the same *sqlx.DB.
type Pool struct {
	writer *sqlx.DB
	reader *sqlx.DB
}

// Writer returns the connection used for inserts, deletes and schema setup.
func (p *Pool) Writer() *sqlx.DB { return p.writer }

// Reader returns the connection pool used for queries.
func (p *Pool) Reader() *sqlx.DB { return p.reader }

// Close closes both sides, tolerating the shared-pool case.
func (p *Pool) Close() error {
	wErr := p.writer.Close()
	if p.reader != p.writer {
		if rErr := p.reader.Close(); rErr != nil && wErr == nil {
			return rErr
		}
	}
	return wErr
}
