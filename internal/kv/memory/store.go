// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package memory provides an in-process kv.Store with multi-version
// optimistic concurrency control. It is used by single-process
// deployments and throughout the tests.
package memory

import (
	"context"
	"sync"

	"github.com/juju/errors"

	"github.com/juju/tasklease/core/kv"
)

type entry struct {
	value   []byte
	version uint64
}

// Store is a goroutine-safe in-memory kv.Store. Every committed write
// stamps the key with a new version; commits fail if any key read by
// the transaction carries a different version at commit time.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	version uint64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]entry),
	}
}

// Begin is part of the kv.Store interface.
func (s *Store) Begin(ctx context.Context, mode kv.Mode) (kv.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return &transaction{
		store:  s,
		mode:   mode,
		reads:  make(map[string]uint64),
		writes: make(map[string][]byte),
	}, nil
}

// Version returns the version of key, or zero if the key is absent.
func (s *Store) Version(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key].version
}

func (s *Store) read(key string) ([]byte, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, 0, false
	}
	return append([]byte(nil), e.value...), e.version, true
}

func (s *Store) apply(reads map[string]uint64, writes map[string][]byte, order []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, version := range reads {
		if s.entries[key].version != version {
			return errors.Annotatef(kv.ErrConflict, "key %q", key)
		}
	}
	for _, key := range order {
		s.version++
		s.entries[key] = entry{
			value:   writes[key],
			version: s.version,
		}
	}
	return nil
}

type transaction struct {
	store *Store
	mode  kv.Mode
	done  bool

	// reads holds the version observed for each key read; zero means
	// the key was absent.
	reads  map[string]uint64
	writes map[string][]byte
	order  []string
}

// Get is part of the kv.Transaction interface.
func (t *transaction) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if t.done {
		return nil, false, kv.ErrTxnDone
	}
	if err := ctx.Err(); err != nil {
		return nil, false, errors.Trace(err)
	}
	if value, ok := t.writes[key]; ok {
		return append([]byte(nil), value...), true, nil
	}

	value, version, found := t.store.read(key)
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = version
	}
	return value, found, nil
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
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	if len(t.writes) == 0 {
		return nil
	}
	return t.store.apply(t.reads, t.writes, t.order)
}

// Abort is part of the kv.Transaction interface.
func (t *transaction) Abort() error {
	if t.done {
		return kv.ErrTxnDone
	}
	t.done = true
	return nil
}
