package sqlkv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pantrykv/pantry"
)

func TestFingerprintColumnRoundtrip(t *testing.T) {
	for _, fp := range []uint64{0, 1, 1 << 63, ^uint64(0), 0xdeadbeefcafebabe} {
		assert.Equal(t, fp, fpFromDB(fpToDB(fp)))
	}
	// Fingerprints with the high bit set land in the column as
	// negative values.
	assert.Negative(t, fpToDB(1<<63))
}

func TestWhereClause(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	where, args := whereClause(pantry.Query{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = whereClause(pantry.Query{Partition: "p"})
	assert.Equal(t, " WHERE part = ?", where)
	assert.Equal(t, []any{"p"}, args)

	where, args = whereClause(pantry.Query{Expiry: pantry.ExpiryValid, Now: now})
	assert.Equal(t, " WHERE expires_at >= ?", where)
	assert.Equal(t, []any{now.UnixNano()}, args)

	where, args = whereClause(pantry.Query{Expiry: pantry.ExpiryExpired, Now: now})
	assert.Equal(t, " WHERE expires_at < ?", where)
	assert.Equal(t, []any{now.UnixNano()}, args)

	where, args = whereClause(pantry.Query{Partition: "p", Expiry: pantry.ExpiryExpired, Now: now})
	assert.Equal(t, " WHERE part = ? AND expires_at < ?", where)
	assert.Equal(t, []any{"p", now.UnixNano()}, args)
}

func TestUpsertArgs(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	e := pantry.Entry{
		Fingerprint: 7,
		Partition:   "p",
		Key:         "k",
		Value:       []byte("v"),
		Compressed:  true,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Minute),
		Interval:    time.Minute,
		ParentKeys:  []string{"a", "b"},
	}

	args := upsertArgs(e)
	assert.Equal(t, []any{
		int64(7), "p", "k", []byte("v"), true,
		now.UnixNano(), now.Add(time.Minute).UnixNano(), int64(time.Minute),
		"a", "b", nil, nil, nil,
	}, args)
}

func TestParentCheckArgs(t *testing.T) {
	e := pantry.Entry{Partition: "p", ParentKeys: []string{"a", "b"}}
	// Unused slots repeat the first key so one prepared statement
	// serves every parent count.
	assert.Equal(t, []any{"p", "a", "b", "a", "a", "a"}, parentCheckArgs(e))

	e.ParentKeys = []string{"x", "y", "z", "w", "u"}
	assert.Equal(t, []any{"p", "x", "y", "z", "w", "u"}, parentCheckArgs(e))
}

func TestDistinctCount(t *testing.T) {
	assert.Equal(t, 0, distinctCount(nil))
	assert.Equal(t, 1, distinctCount([]string{"a"}))
	assert.Equal(t, 2, distinctCount([]string{"a", "b", "a"}))
}
