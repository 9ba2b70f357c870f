// Package mysqlstore provides a pantry.Store backed by MySQL, for
// caches shared between processes.
package mysqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/go-sql-driver/mysql"

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

// Store is a pantry.Store backed by a MySQL database.
type Store struct {
	*sqlkv.Store
}

var _ pantry.Store = (*Store)(nil)

// Open returns a Store over the MySQL database identified by dsn, in
// go-sql-driver format ("user:pass@tcp(host:3306)/dbname"). The
// entries table is created when absent; the database itself must
// exist.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "mysqlstore: open")
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	kv, err := sqlkv.New(ctx, db, dialect{}, cfg.queryTimeout)
	if err != nil {
		return nil, err
	}
	return &Store{Store: kv}, nil
}

type dialect struct{}

func (dialect) Name() string { return "mysqlstore" }

func (dialect) Rebind(query string) string { return query }

func (dialect) OrphanDeleteSQL() string { return "" }

func (dialect) DDL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS pantry_entries (
			fp BIGINT NOT NULL,
			part VARCHAR(255) NOT NULL,
			ckey VARCHAR(255) NOT NULL,
			value LONGBLOB NOT NULL,
			compressed TINYINT(1) NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			renew_ns BIGINT NOT NULL DEFAULT 0,
			parent0 VARCHAR(255) NULL,
			parent1 VARCHAR(255) NULL,
			parent2 VARCHAR(255) NULL,
			parent3 VARCHAR(255) NULL,
			parent4 VARCHAR(255) NULL,
			PRIMARY KEY (fp),
			UNIQUE KEY uq_pantry_part_ckey (part, ckey),
			KEY idx_pantry_expires_at (expires_at),
			CONSTRAINT fk_pantry_parent0 FOREIGN KEY (part, parent0) REFERENCES pantry_entries (part, ckey) ON DELETE CASCADE,
			CONSTRAINT fk_pantry_parent1 FOREIGN KEY (part, parent1) REFERENCES pantry_entries (part, ckey) ON DELETE CASCADE,
			CONSTRAINT fk_pantry_parent2 FOREIGN KEY (part, parent2) REFERENCES pantry_entries (part, ckey) ON DELETE CASCADE,
			CONSTRAINT fk_pantry_parent3 FOREIGN KEY (part, parent3) REFERENCES pantry_entries (part, ckey) ON DELETE CASCADE,
			CONSTRAINT fk_pantry_parent4 FOREIGN KEY (part, parent4) REFERENCES pantry_entries (part, ckey) ON DELETE CASCADE
		) ENGINE = InnoDB`,
	}
}

func (dialect) UpsertSQL() string {
	return `INSERT INTO pantry_entries (fp, part, ckey, value, compressed, created_at, expires_at, renew_ns, parent0, parent1, parent2, parent3, parent4)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			part = VALUES(part),
			ckey = VALUES(ckey),
			value = VALUES(value),
			compressed = VALUES(compressed),
			created_at = VALUES(created_at),
			expires_at = VALUES(expires_at),
			renew_ns = VALUES(renew_ns),
			parent0 = VALUES(parent0),
			parent1 = VALUES(parent1),
			parent2 = VALUES(parent2),
			parent3 = VALUES(parent3),
			parent4 = VALUES(parent4)`
}

func (dialect) SizeSQL() string {
	return `SELECT CAST(COALESCE(SUM(LENGTH(value)), 0) AS SIGNED) FROM pantry_entries`
}
