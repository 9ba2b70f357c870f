// Package sqlkv implements the pantry store contract over database/sql,
// parametrized by a Dialect for each supported engine.
package sqlkv

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/pantrykv/pantry"
)

// TableName is the entries table every dialect creates.
const TableName = "pantry_entries"

// ParentKeySlots is the number of parent key columns in the entries
// table and therefore the parent limit SQL stores declare.
const ParentKeySlots = 5

// MaxNameLen is the declared width of the partition and key columns.
const MaxNameLen = 255

// DefaultQueryTimeout bounds each statement issued by the store.
// Prevents indefinite hangs on slow or unresponsive storage.
const DefaultQueryTimeout = 5 * time.Second

// Dialect adapts the shared store to one SQL engine.
type Dialect interface {
	// Name labels the backend in error messages.
	Name() string

	// DDL returns the statements that create the entries table and its
	// indexes. Each must be a no-op when the object already exists.
	DDL() []string

	// UpsertSQL returns the single-statement atomic insert-or-replace
	// taking the thirteen entry columns as placeholders.
	UpsertSQL() string

	// OrphanDeleteSQL returns a statement that deletes entries whose
	// parent keys no longer exist, for engines whose schemas cannot
	// declare self-referential cascading foreign keys. Empty means the
	// schema's foreign keys already cascade and no sweep is needed.
	OrphanDeleteSQL() string

	// SizeSQL returns a query yielding the summed payload size in
	// bytes as a single integer row.
	SizeSQL() string

	// Rebind rewrites ? placeholders to the engine's style.
	Rebind(query string) string
}

const selectColumns = "fp, part, ckey, value, compressed, created_at, expires_at, renew_ns, parent0, parent1, parent2, parent3, parent4"

// Store is a pantry.Store over a database/sql connection. It owns the
// DB handle and closes it on Close.
type Store struct {
	db      *sql.DB
	dialect Dialect
	timeout time.Duration

	upsertSQL      string
	orphanSQL      string
	readSQL        string
	deleteSQL      string
	sizeSQL        string
	parentCheckSQL string
}

var _ pantry.Store = (*Store)(nil)

// New wraps db in a Store using dialect, creating the schema when
// absent. A non-positive timeout means DefaultQueryTimeout. On error
// the DB handle is closed.
func New(ctx context.Context, db *sql.DB, dialect Dialect, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	s := &Store{
		db:             db,
		dialect:        dialect,
		timeout:        timeout,
		upsertSQL:      dialect.Rebind(dialect.UpsertSQL()),
		orphanSQL:      dialect.OrphanDeleteSQL(),
		readSQL:        dialect.Rebind("SELECT " + selectColumns + " FROM " + TableName + " WHERE fp = ?"),
		deleteSQL:      dialect.Rebind("DELETE FROM " + TableName + " WHERE fp = ?"),
		sizeSQL:        dialect.SizeSQL(),
		parentCheckSQL: dialect.Rebind("SELECT COUNT(*) FROM " + TableName + " WHERE part = ? AND ckey IN (?, ?, ?, ?, ?)"),
	}
	for _, stmt := range dialect.DDL() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "%s: create schema", dialect.Name())
		}
	}
	return s, nil
}

// queryCtx bounds a single statement with the store's query timeout.
func (s *Store) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Capabilities declares the shared schema's limits: 255-byte names,
// five parent key slots, peeking supported.
func (s *Store) Capabilities() pantry.Capabilities {
	return pantry.Capabilities{
		MaxPartitionLen: MaxNameLen,
		MaxKeyLen:       MaxNameLen,
		MaxParentKeys:   ParentKeySlots,
		Peekable:        true,
	}
}

func (s *Store) Upsert(ctx context.Context, e pantry.Entry) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	// Engines with cascading foreign keys verify parents for free.
	// The rest check explicitly, inside the write transaction. The
	// transaction is serializable so the check's read locks survive to
	// commit: a concurrent parent delete either waits for this write
	// and sweeps the dependent, or commits first and fails the check.
	// Anything less lets a dependent land unseen after the sweep.
	if s.orphanSQL == "" || len(e.ParentKeys) == 0 {
		if _, err := s.db.ExecContext(qctx, s.upsertSQL, upsertArgs(e)...); err != nil {
			return errors.Wrapf(err, "%s: upsert", s.dialect.Name())
		}
		return nil
	}

	tx, err := s.db.BeginTx(qctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return errors.Wrapf(err, "%s: upsert", s.dialect.Name())
	}
	defer tx.Rollback()

	var have int
	if err := tx.QueryRowContext(qctx, s.parentCheckSQL, parentCheckArgs(e)...).Scan(&have); err != nil {
		return errors.Wrapf(err, "%s: upsert", s.dialect.Name())
	}
	if want := distinctCount(e.ParentKeys); have != want {
		return errors.Newf("%s: upsert: parent key not found in partition %q", s.dialect.Name(), e.Partition)
	}
	if _, err := tx.ExecContext(qctx, s.upsertSQL, upsertArgs(e)...); err != nil {
		return errors.Wrapf(err, "%s: upsert", s.dialect.Name())
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "%s: upsert", s.dialect.Name())
	}
	return nil
}

func (s *Store) Read(ctx context.Context, fp uint64) (pantry.Entry, bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	row := s.db.QueryRowContext(qctx, s.readSQL, fpToDB(fp))
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pantry.Entry{}, false, nil
	}
	if err != nil {
		return pantry.Entry{}, false, errors.Wrapf(err, "%s: read", s.dialect.Name())
	}
	return e, true, nil
}

func (s *Store) Delete(ctx context.Context, fp uint64) (bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if s.orphanSQL == "" {
		res, err := s.db.ExecContext(qctx, s.deleteSQL, fpToDB(fp))
		if err != nil {
			return false, errors.Wrapf(err, "%s: delete", s.dialect.Name())
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, errors.Wrapf(err, "%s: delete", s.dialect.Name())
		}
		return n > 0, nil
	}

	tx, err := s.db.BeginTx(qctx, nil)
	if err != nil {
		return false, errors.Wrapf(err, "%s: delete", s.dialect.Name())
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(qctx, s.deleteSQL, fpToDB(fp))
	if err != nil {
		return false, errors.Wrapf(err, "%s: delete", s.dialect.Name())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "%s: delete", s.dialect.Name())
	}
	if n == 0 {
		return false, nil
	}
	if err := s.sweepOrphans(qctx, tx); err != nil {
		return false, errors.Wrapf(err, "%s: delete", s.dialect.Name())
	}
	if err := tx.Commit(); err != nil {
		return false, errors.Wrapf(err, "%s: delete", s.dialect.Name())
	}
	return true, nil
}

func (s *Store) DeleteWhere(ctx context.Context, q pantry.Query) (int64, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	where, args := whereClause(q)
	del := s.dialect.Rebind("DELETE FROM " + TableName + where)

	if s.orphanSQL == "" {
		res, err := s.db.ExecContext(qctx, del, args...)
		if err != nil {
			return 0, errors.Wrapf(err, "%s: delete", s.dialect.Name())
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, errors.Wrapf(err, "%s: delete", s.dialect.Name())
		}
		return n, nil
	}

	tx, err := s.db.BeginTx(qctx, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "%s: delete", s.dialect.Name())
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(qctx, del, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "%s: delete", s.dialect.Name())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrapf(err, "%s: delete", s.dialect.Name())
	}
	if err := s.sweepOrphans(qctx, tx); err != nil {
		return 0, errors.Wrapf(err, "%s: delete", s.dialect.Name())
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrapf(err, "%s: delete", s.dialect.Name())
	}
	return n, nil
}

// sweepOrphans repeatedly deletes entries whose parents are gone until
// none remain. A dangling parent reference can only be the result of a
// deletion, since writes verify parents, so everything the sweep
// removes is cascade-due.
func (s *Store) sweepOrphans(ctx context.Context, tx *sql.Tx) error {
	for {
		res, err := tx.ExecContext(ctx, s.orphanSQL)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func (s *Store) Count(ctx context.Context, q pantry.Query) (int64, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	where, args := whereClause(q)
	var n int64
	err := s.db.QueryRowContext(qctx, s.dialect.Rebind("SELECT COUNT(*) FROM "+TableName+where), args...).Scan(&n)
	if err != nil {
		return 0, errors.Wrapf(err, "%s: count", s.dialect.Name())
	}
	return n, nil
}

func (s *Store) Scan(ctx context.Context, q pantry.Query, fn func(pantry.Entry) error) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	where, args := whereClause(q)
	query := s.dialect.Rebind("SELECT " + selectColumns + " FROM " + TableName + where + " ORDER BY part, ckey")
	rows, err := s.db.QueryContext(qctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "%s: scan", s.dialect.Name())
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return errors.Wrapf(err, "%s: scan", s.dialect.Name())
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrapf(err, "%s: scan", s.dialect.Name())
	}
	return nil
}

func (s *Store) SizeEstimate(ctx context.Context) (int64, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var n int64
	if err := s.db.QueryRowContext(qctx, s.sizeSQL).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "%s: size", s.dialect.Name())
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Fingerprints live in signed 64-bit columns; the conversion is a bit
// reinterpretation and round-trips exactly.
func fpToDB(fp uint64) int64  { return int64(fp) }
func fpFromDB(v int64) uint64 { return uint64(v) }

// upsertArgs renders an entry as the thirteen column values the upsert
// statement takes.
func upsertArgs(e pantry.Entry) []any {
	args := make([]any, 0, 8+ParentKeySlots)
	args = append(args,
		fpToDB(e.Fingerprint),
		e.Partition,
		e.Key,
		e.Value,
		e.Compressed,
		e.CreatedAt.UnixNano(),
		e.ExpiresAt.UnixNano(),
		int64(e.Interval),
	)
	for i := 0; i < ParentKeySlots; i++ {
		if i < len(e.ParentKeys) {
			args = append(args, e.ParentKeys[i])
		} else {
			args = append(args, nil)
		}
	}
	return args
}

// parentCheckArgs fills the parent existence query: the partition, then
// the parent keys padded to the slot count by repeating the first key.
func parentCheckArgs(e pantry.Entry) []any {
	args := make([]any, 0, 1+ParentKeySlots)
	args = append(args, e.Partition)
	for i := 0; i < ParentKeySlots; i++ {
		if i < len(e.ParentKeys) {
			args = append(args, e.ParentKeys[i])
		} else {
			args = append(args, e.ParentKeys[0])
		}
	}
	return args
}

func distinctCount(keys []string) int {
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	return len(seen)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (pantry.Entry, error) {
	var (
		fp         int64
		part, key  string
		value      []byte
		compressed bool
		createdNS  int64
		expiresNS  int64
		renewNS    int64
		parents    [ParentKeySlots]sql.NullString
	)
	if err := row.Scan(&fp, &part, &key, &value, &compressed, &createdNS, &expiresNS, &renewNS,
		&parents[0], &parents[1], &parents[2], &parents[3], &parents[4]); err != nil {
		return pantry.Entry{}, err
	}
	e := pantry.Entry{
		Fingerprint: fpFromDB(fp),
		Partition:   part,
		Key:         key,
		Value:       value,
		Compressed:  compressed,
		CreatedAt:   time.Unix(0, createdNS).UTC(),
		ExpiresAt:   time.Unix(0, expiresNS).UTC(),
		Interval:    time.Duration(renewNS),
	}
	for _, p := range parents {
		if p.Valid {
			e.ParentKeys = append(e.ParentKeys, p.String)
		}
	}
	return e, nil
}

// whereClause renders q as a WHERE fragment with ? placeholders.
func whereClause(q pantry.Query) (string, []any) {
	var conds []string
	var args []any
	if q.Partition != "" {
		conds = append(conds, "part = ?")
		args = append(args, q.Partition)
	}
	switch q.Expiry {
	case pantry.ExpiryValid:
		conds = append(conds, "expires_at >= ?")
		args = append(args, q.Now.UnixNano())
	case pantry.ExpiryExpired:
		conds = append(conds, "expires_at < ?")
		args = append(args, q.Now.UnixNano())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
