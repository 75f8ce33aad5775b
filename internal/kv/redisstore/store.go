// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package redisstore implements kv.Store on Redis. Each key is a hash
// holding the value and a version; commits WATCH the read set, check
// the versions and apply the writes in a MULTI/EXEC block.
package redisstore

import (
	"context"
	"strconv"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"

	"github.com/juju/tasklease/core/kv"
)

const (
	valueField   = "value"
	versionField = "version"
)

// Store is a kv.Store backed by a Redis client.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// NewStore returns a Store that namespaces every key with prefix.
func NewStore(client redis.UniversalClient, prefix string) (*Store, error) {
	if client == nil {
		return nil, errors.NotValidf("nil redis client")
	}
	return &Store{
		client: client,
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

func (s *Store) redisKey(key string) string {
	return s.prefix + key
}

// read returns the value and version of key; version zero means the
// key is absent.
func (s *Store) read(ctx context.Context, cmd redis.Cmdable, key string) ([]byte, int64, error) {
	fields, err := cmd.HMGet(ctx, s.redisKey(key), valueField, versionField).Result()
	if err != nil {
		return nil, 0, errors.Annotatef(err, "reading %q", key)
	}
	if len(fields) != 2 || fields[1] == nil {
		return nil, 0, nil
	}

	version, err := strconv.ParseInt(asString(fields[1]), 10, 64)
	if err != nil {
		return nil, 0, errors.Annotatef(err, "parsing version of %q", key)
	}
	return []byte(asString(fields[0])), version, nil
}

func (s *Store) apply(ctx context.Context, reads map[string]int64, writes map[string][]byte, order []string) error {
	watched := make([]string, 0, len(reads))
	for key := range reads {
		watched = append(watched, s.redisKey(key))
	}

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		for key, version := range reads {
			_, current, err := s.read(ctx, tx, key)
			if err != nil {
				return errors.Trace(err)
			}
			if current != version {
				return errors.Annotatef(kv.ErrConflict, "key %q", key)
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, key := range order {
				rkey := s.redisKey(key)
				pipe.HSet(ctx, rkey, valueField, writes[key])
				pipe.HIncrBy(ctx, rkey, versionField, 1)
			}
			return nil
		})
		return err
	}, watched...)

	if errors.Is(err, redis.TxFailedErr) {
		return errors.Annotate(kv.ErrConflict, "watched keys modified")
	}
	return errors.Trace(err)
}

func asString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

type transaction struct {
	store *Store
	mode  kv.Mode
	done  bool

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

	value, version, err := t.store.read(ctx, t.store.client, key)
	if err != nil {
		return nil, false, errors.Trace(err)
	}
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = version
	}
	return value, version != 0, nil
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
