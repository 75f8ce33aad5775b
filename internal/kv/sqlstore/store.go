// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package sqlstore implements kv.Store on a SQL database through
// sqlair. It works against sqlite, and against dqlite for clustered
// deployments.
package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/canonical/sqlair"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"

	"github.com/juju/tasklease/core/kv"
	"github.com/juju/tasklease/core/logger"
)

const (
	// retryAttempts bounds how many times a commit blocked by another
	// writer's lock is attempted.
	retryAttempts = 25

	retryDelay    = 10 * time.Millisecond
	retryMaxDelay = 500 * time.Millisecond
)

// Config holds the dependencies of a Store.
type Config struct {
	DB     *sql.DB
	Clock  clock.Clock
	Logger logger.Logger
}

// Validate returns an error if the config cannot drive a Store.
func (config Config) Validate() error {
	if config.DB == nil {
		return errors.NotValidf("nil DB")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// Store is a kv.Store persisted in a single SQL table.
type Store struct {
	db     *sqlair.DB
	clock  clock.Clock
	logger logger.Logger

	selectStmt *sqlair.Statement
	insertStmt *sqlair.Statement
	updateStmt *sqlair.Statement
	upsertStmt *sqlair.Statement
}

// NewStore ensures the schema exists and returns a Store using it.
func NewStore(ctx context.Context, config Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if _, err := config.DB.ExecContext(ctx, schema); err != nil {
		return nil, errors.Annotate(err, "creating kv schema")
	}

	s := &Store{
		db:     sqlair.NewDB(config.DB),
		clock:  config.Clock,
		logger: config.Logger,
	}

	var err error
	if s.selectStmt, err = sqlair.Prepare(`
SELECT &Entry.*
FROM   kv
WHERE  key = $Entry.key`, Entry{}); err != nil {
		return nil, errors.Annotate(err, "preparing select statement")
	}
	if s.insertStmt, err = sqlair.Prepare(`
INSERT INTO kv (key, value, version)
VALUES ($Entry.key, $Entry.value, 1)`, Entry{}); err != nil {
		return nil, errors.Annotate(err, "preparing insert statement")
	}
	if s.updateStmt, err = sqlair.Prepare(`
UPDATE kv
SET    value = $Entry.value,
       version = version + 1
WHERE  key = $Expected.key
AND    version = $Expected.version`, Entry{}, Expected{}); err != nil {
		return nil, errors.Annotate(err, "preparing update statement")
	}
	if s.upsertStmt, err = sqlair.Prepare(`
INSERT INTO kv (key, value, version)
VALUES ($Entry.key, $Entry.value, 1)
ON CONFLICT (key) DO UPDATE SET
    value = excluded.value,
    version = kv.version + 1`, Entry{}); err != nil {
		return nil, errors.Annotate(err, "preparing upsert statement")
	}
	return s, nil
}

// Begin is part of the kv.Store interface. Reads go straight to the
// database; writes are buffered until Commit.
func (s *Store) Begin(ctx context.Context, mode kv.Mode) (kv.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return &transaction{
		store:  s,
		mode:   mode,
		reads:  make(map[string]int64),
		writes: make(map[string][]byte),
	}, nil
}

func (s *Store) read(ctx context.Context, key string) (Entry, bool, error) {
	row := Entry{Key: key}
	err := s.db.Query(ctx, s.selectStmt, row).Get(&row)
	if errors.Is(err, sqlair.ErrNoRows) {
		return Entry{}, false, nil
	} else if err != nil {
		return Entry{}, false, errors.Annotatef(err, "reading %q", key)
	}
	return row, true, nil
}

// apply runs the commit, retrying while another writer holds the
// database lock. Conflicts are never retried.
func (s *Store) apply(ctx context.Context, reads map[string]int64, writes map[string][]byte, order []string) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return s.applyOnce(ctx, reads, writes, order)
		},
		IsFatalError: func(err error) bool {
			return !IsErrRetryable(err)
		},
		NotifyFunc: func(lastError error, attempt int) {
			s.logger.Tracef("retrying kv commit (attempt %d): %v", attempt, lastError)
		},
		Attempts:    retryAttempts,
		Delay:       retryDelay,
		MaxDelay:    retryMaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       s.clock,
		Stop:        ctx.Done(),
	})
	if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
		err = retry.LastError(err)
	}
	return errors.Trace(err)
}

func (s *Store) applyOnce(ctx context.Context, reads map[string]int64, writes map[string][]byte, order []string) (err error) {
	tx, err := s.db.Begin(ctx, nil)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Debugf("rolling back kv commit: %v", rbErr)
			}
		}
	}()

	// Keys that were read but not written must be unchanged.
	for key, version := range reads {
		if _, written := writes[key]; written {
			continue
		}
		row := Entry{Key: key}
		err := tx.Query(ctx, s.selectStmt, row).Get(&row)
		switch {
		case errors.Is(err, sqlair.ErrNoRows):
			row.Version = 0
		case err != nil:
			return errors.Annotatef(err, "checking %q", key)
		}
		if row.Version != version {
			return errors.Annotatef(kv.ErrConflict, "key %q", key)
		}
	}

	for _, key := range order {
		if err := s.write(ctx, tx, reads, key, writes[key]); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(tx.Commit())
}

func (s *Store) write(ctx context.Context, tx *sqlair.TX, reads map[string]int64, key string, value []byte) error {
	entry := Entry{Key: key, Value: value}
	version, read := reads[key]

	switch {
	case !read:
		// Blind writes are not conditional on anything.
		err := tx.Query(ctx, s.upsertStmt, entry).Run()
		return errors.Annotatef(err, "writing %q", key)

	case version == 0:
		// The key was absent when read; another writer creating it in
		// the meantime violates the primary key.
		err := tx.Query(ctx, s.insertStmt, entry).Run()
		if IsErrConstraintUnique(err) {
			return errors.Annotatef(kv.ErrConflict, "key %q", key)
		}
		return errors.Annotatef(err, "inserting %q", key)

	default:
		var outcome sqlair.Outcome
		err := tx.Query(ctx, s.updateStmt, entry, Expected{Key: key, Version: version}).Get(&outcome)
		if err != nil {
			return errors.Annotatef(err, "updating %q", key)
		}
		affected, err := outcome.Result().RowsAffected()
		if err != nil {
			return errors.Trace(err)
		}
		if affected == 0 {
			return errors.Annotatef(kv.ErrConflict, "key %q", key)
		}
		return nil
	}
}

type transaction struct {
	store *Store
	mode  kv.Mode
	done  bool

	// reads holds the row version observed for each key; zero means
	// the key was absent.
	reads  map[string]int64
	writes map[string][]byte
	order  []string
}

// Get is part of the kv.Transaction interface.
func (t *transaction) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if t.done {
		return nil, false, kv.ErrTxnDone
	}
	if value, ok := t.writes[key]; ok {
		return append([]byte(nil), value...), true, nil
	}

	row, found, err := t.store.read(ctx, key)
	if err != nil {
		return nil, false, errors.Trace(err)
	}
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = row.Version
	}
	return row.Value, found, nil
}

// Set is part of the kv.Transaction interface.
func (t *transaction) Set(ctx context.Context, key string, value []byte) error {
	if t.done {
		return kv.ErrTxnDone
	}
	if t.mode != kv.ReadWrite {
		return kv.ErrReadOnly
	}
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = append([]byte(nil), value...)
	return nil
}

// Commit is part of the kv.Transaction interface.
func (t *transaction) Commit(ctx context.Context) error {
	if t.done {
		return kv.ErrTxnDone
	}
	t.done = true
	if len(t.writes) == 0 {
		return nil
	}
	return t.store.apply(ctx, t.reads, t.writes, t.order)
}

// Abort is part of the kv.Transaction interface.
func (t *transaction) Abort() error {
	if t.done {
		return kv.ErrTxnDone
	}
	t.done = true
	return nil
}
