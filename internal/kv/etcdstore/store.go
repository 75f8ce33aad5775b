// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package etcdstore implements kv.Store on etcd. Reads record each
// key's mod revision; Commit is a single etcd transaction guarded by
// comparisons against those revisions.
package etcdstore

import (
	"context"

	"github.com/juju/errors"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/juju/tasklease/core/kv"
)

// Store is a kv.Store backed by an etcd cluster.
type Store struct {
	kv     clientv3.KV
	prefix string
}

// NewStore returns a Store that namespaces every key with prefix.
func NewStore(client clientv3.KV, prefix string) (*Store, error) {
	if client == nil {
		return nil, errors.NotValidf("nil etcd client")
	}
	return &Store{
		kv:     client,
		prefix: prefix,
	}, nil
}

// Begin is part of the kv.Store interface.
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

func (s *Store) etcdKey(key string) string {
	return s.prefix + key
}

type transaction struct {
	store *Store
	mode  kv.Mode
	done  bool

	// rev pins every read after the first to the same store revision,
	// so the transaction sees a consistent snapshot.
	rev int64

	// reads holds the mod revision of each key read; zero means the
	// key was absent.
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

	var opts []clientv3.OpOption
	if t.rev > 0 {
		opts = append(opts, clientv3.WithRev(t.rev))
	}
	resp, err := t.store.kv.Get(ctx, t.store.etcdKey(key), opts...)
	if err != nil {
		return nil, false, errors.Annotatef(err, "reading %q", key)
	}
	if t.rev == 0 {
		t.rev = resp.Header.Revision
	}

	var (
		value  []byte
		modRev int64
	)
	if len(resp.Kvs) > 0 {
		value = resp.Kvs[0].Value
		modRev = resp.Kvs[0].ModRevision
	}
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = modRev
	}
	return value, len(resp.Kvs) > 0, nil
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

	cmps := make([]clientv3.Cmp, 0, len(t.reads))
	for key, rev := range t.reads {
		cmps = append(cmps, clientv3.Compare(clientv3.ModRevision(t.store.etcdKey(key)), "=", rev))
	}
	puts := make([]clientv3.Op, 0, len(t.order))
	for _, key := range t.order {
		puts = append(puts, clientv3.OpPut(t.store.etcdKey(key), string(t.writes[key])))
	}

	resp, err := t.store.kv.Txn(ctx).If(cmps...).Then(puts...).Commit()
	if err != nil {
		return errors.Annotate(err, "committing etcd transaction")
	}
	if !resp.Succeeded {
		return errors.Annotate(kv.ErrConflict, "mod revision changed")
	}
	return nil
}

// Abort is part of the kv.Transaction interface.
func (t *transaction) Abort() error {
	if t.done {
		return kv.ErrTxnDone
	}
	t.done = true
	return nil
}
