// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlstore

// schema creates the single table backing the store. Every row carries
// a version that is bumped on each write; optimistic commits compare
// against it.
const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key     TEXT PRIMARY KEY,
    value   BLOB NOT NULL,
    version INTEGER NOT NULL
);`

// Entry is the sqlair mapping of a kv row.
type Entry struct {
	Key     string `db:"key"`
	Value   []byte `db:"value"`
	Version int64  `db:"version"`
}

// Expected carries the version a row must still have for a write to
// apply.
type Expected struct {
	Key     string `db:"key"`
	Version int64  `db:"version"`
}
