// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package kv

import (
	"context"

	"github.com/juju/errors"
)

const (
	// ErrConflict is returned from Commit when a key read by the
	// transaction was modified by another writer before the commit
	// could be applied.
	ErrConflict = errors.ConstError("transaction conflict")

	// ErrReadOnly is returned when attempting to write within a read-only
	// transaction.
	ErrReadOnly = errors.ConstError("transaction is read-only")

	// ErrTxnDone is returned when using a transaction that has already
	// been committed or aborted.
	ErrTxnDone = errors.ConstError("transaction already finished")
)

// Mode describes how a transaction intends to use the store.
type Mode int

const (
	// ReadOnly transactions can only read keys. Committing a read-only
	// transaction is a no-op.
	ReadOnly Mode = iota

	// ReadWrite transactions buffer writes until Commit, which applies
	// them only if none of the keys read have changed in the meantime.
	ReadWrite
)

// String returns the mode in human readable form.
func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	}
	return "unknown"
}

// Store opens optimistic transactions against a key-value backend.
type Store interface {
	// Begin opens a new transaction. No locks are taken; conflicts are
	// detected when a read-write transaction is committed.
	Begin(ctx context.Context, mode Mode) (Transaction, error)
}

// Transaction is a single optimistic unit of work against a Store.
// Transactions are not goroutine-safe.
type Transaction interface {
	// Get returns the value stored at key, and whether it was present.
	// The key, and the version observed, are added to the read set.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set buffers a write of value to key.
	Set(ctx context.Context, key string, value []byte) error

	// Commit applies the buffered writes. If any key in the read set
	// has been modified since it was read, nothing is written and an
	// error satisfying IsConflict is returned.
	Commit(ctx context.Context) error

	// Abort discards the transaction. Aborting a finished transaction
	// returns ErrTxnDone, and is otherwise harmless.
	Abort() error
}

// IsConflict reports whether err indicates a lost optimistic commit.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
