// Package sqlitestore provides a pantry.Store backed by SQLite using
// modernc.org/sqlite (pure Go, no CGO). It serves both volatile
// in-memory caches and file-backed ones that survive restarts, and is
// the only bundled store with Vacuum support.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/pantrykv/pantry"
	"github.com/pantrykv/pantry/internal/sqlkv"
)

// config holds the resolved configuration for a Store.
type config struct {
	queryTimeout time.Duration
}

// Option configures a Store.
type Option func(*config)

// WithQueryTimeout sets the per-statement timeout. Defaults to 5
// seconds.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// Store is a pantry.Store backed by a SQLite database.
type Store struct {
	*sqlkv.Store
	db *sql.DB
}

var (
	_ pantry.Store    = (*Store)(nil)
	_ pantry.Vacuumer = (*Store)(nil)
)

// volatileSeq isolates concurrently opened volatile databases from one
// another.
var volatileSeq atomic.Int64

// Open returns a Store backed by the SQLite database at path, creating
// the file and schema when absent. An empty path or ":memory:" opens a
// volatile database instead. WAL mode and foreign keys are enabled on
// every connection.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" || path == ":memory:" {
		return OpenVolatile(ctx, opts...)
	}
	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)"
	return open(ctx, dsn, false, opts)
}

// OpenVolatile returns a Store over a private in-memory database that
// disappears on Close. Every call opens an isolated database; two
// volatile stores never see each other's entries.
func OpenVolatile(ctx context.Context, opts ...Option) (*Store, error) {
	dsn := fmt.Sprintf("file:pantry%d?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		volatileSeq.Add(1))
	return open(ctx, dsn, true, opts)
}

func open(ctx context.Context, dsn string, volatile bool, opts []Option) (*Store, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlitestore: open")
	}
	if volatile {
		// A shared-cache memory database lives as long as one
		// connection does; pin a single connection so the pool cannot
		// drop the data.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	kv, err := sqlkv.New(ctx, db, dialect{}, cfg.queryTimeout)
	if err != nil {
		return nil, err
	}
	return &Store{Store: kv, db: db}, nil
}

// Vacuum rebuilds the database, returning space freed by deleted
// entries to the filesystem. It runs under the caller's context alone;
// large files can exceed the per-statement timeout.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return errors.Wrap(err, "sqlitestore: vacuum")
	}
	return nil
}

type dialect struct{}

func (dialect) Name() string { return "sqlitestore" }

func (dialect) Rebind(query string) string { return query }

func (dialect) OrphanDeleteSQL() string { return "" }

func (dialect) DDL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS pantry_entries (
			fp INTEGER PRIMARY KEY,
			part TEXT NOT NULL,
			ckey TEXT NOT NULL,
			value BLOB NOT NULL,
			compressed INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			renew_ns INTEGER NOT NULL DEFAULT 0,
			parent0 TEXT,
			parent1 TEXT,
			parent2 TEXT,
			parent3 TEXT,
			parent4 TEXT,
			UNIQUE (part, ckey),
			FOREIGN KEY (part, parent0) REFERENCES pantry_entries (part, ckey) ON DELETE CASCADE,
			FOREIGN KEY (part, parent1) REFERENCES pantry_entries (part, ckey) ON DELETE CASCADE,
			FOREIGN KEY (part, parent2) REFERENCES pantry_entries (part, ckey) ON DELETE CASCADE,
			FOREIGN KEY (part, parent3) REFERENCES pantry_entries (part, ckey) ON DELETE CASCADE,
			FOREIGN KEY (part, parent4) REFERENCES pantry_entries (part, ckey) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pantry_expires_at ON pantry_entries (expires_at)`,
	}
}

func (dialect) UpsertSQL() string {
	return `INSERT INTO pantry_entries (fp, part, ckey, value, compressed, created_at, expires_at, renew_ns, parent0, parent1, parent2, parent3, parent4)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (fp) DO UPDATE SET
			part = excluded.part,
			ckey = excluded.ckey,
			value = excluded.value,
			compressed = excluded.compressed,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			renew_ns = excluded.renew_ns,
			parent0 = excluded.parent0,
			parent1 = excluded.parent1,
			parent2 = excluded.parent2,
			parent3 = excluded.parent3,
			parent4 = excluded.parent4`
}

func (dialect) SizeSQL() string {
	return `SELECT COALESCE(SUM(LENGTH(value)), 0) FROM pantry_entries`
}
