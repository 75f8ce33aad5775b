// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/juju/tasklease/core/kv"
	"github.com/juju/tasklease/core/logger"
	"github.com/juju/tasklease/internal/config"
	"github.com/juju/tasklease/internal/database/app"
	"github.com/juju/tasklease/internal/kv/etcdstore"
	"github.com/juju/tasklease/internal/kv/memory"
	"github.com/juju/tasklease/internal/kv/redisstore"
	"github.com/juju/tasklease/internal/kv/sqlstore"
)

const (
	connectAttempts = 10
	connectDelay    = 250 * time.Millisecond
	connectMaxDelay = 5 * time.Second
)

// closer releases the resources behind a store.
type closer func() error

// openStore connects to the configured backend. Backends reached over
// the network are pinged, with backoff, before the store is returned.
func openStore(ctx context.Context, cfg config.Config, clk clock.Clock, log logger.Logger) (kv.Store, closer, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendMemory:
		log.Warningf("memory backend: leases are not shared with other processes")
		return memory.NewStore(), noop, nil

	case config.BackendSQLite:
		dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", cfg.SQLite.Path)
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, nil, errors.Annotatef(err, "opening %s", cfg.SQLite.Path)
		}
		store, err := newSQLStore(ctx, db, clk, log)
		if err != nil {
			_ = db.Close()
			return nil, nil, errors.Trace(err)
		}
		return store, db.Close, nil

	case config.BackendDqlite:
		node, err := app.New(app.Config{
			Dir:     cfg.Dqlite.Dir,
			Address: cfg.Dqlite.Address,
			Cluster: cfg.Dqlite.Cluster,
			Logger:  log,
		})
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		db, err := node.Open(ctx, cfg.Dqlite.Database)
		if err != nil {
			_ = node.Close()
			return nil, nil, errors.Trace(err)
		}
		store, err := newSQLStore(ctx, db, clk, log)
		if err != nil {
			_ = db.Close()
			_ = node.Close()
			return nil, nil, errors.Trace(err)
		}
		return store, func() error {
			_ = db.Close()
			return node.Close()
		}, nil

	case config.BackendRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := connect(ctx, "redis", clk, log, func() error {
			return client.Ping(ctx).Err()
		}); err != nil {
			_ = client.Close()
			return nil, nil, errors.Trace(err)
		}
		store, err := redisstore.NewStore(client, cfg.Redis.KeyPrefix)
		if err != nil {
			_ = client.Close()
			return nil, nil, errors.Trace(err)
		}
		return store, client.Close, nil

	case config.BackendEtcd:
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: cfg.Etcd.DialTimeout,
			Context:     ctx,
		})
		if err != nil {
			return nil, nil, errors.Annotate(err, "creating etcd client")
		}
		if err := connect(ctx, "etcd", clk, log, func() error {
			_, err := client.Status(ctx, cfg.Etcd.Endpoints[0])
			return err
		}); err != nil {
			_ = client.Close()
			return nil, nil, errors.Trace(err)
		}
		store, err := etcdstore.NewStore(client, cfg.Etcd.KeyPrefix)
		if err != nil {
			_ = client.Close()
			return nil, nil, errors.Trace(err)
		}
		return store, client.Close, nil
	}
	return nil, nil, errors.NotSupportedf("backend %q", cfg.Backend)
}

func newSQLStore(ctx context.Context, db *sql.DB, clk clock.Clock, log logger.Logger) (kv.Store, error) {
	if err := connect(ctx, "database", clk, log, func() error {
		return db.PingContext(ctx)
	}); err != nil {
		return nil, errors.Trace(err)
	}
	store, err := sqlstore.NewStore(ctx, sqlstore.Config{
		DB:     db,
		Clock:  clk,
		Logger: log,
	})
	return store, errors.Trace(err)
}

// connect calls ping until it succeeds, backing off between attempts.
func connect(ctx context.Context, what string, clk clock.Clock, log logger.Logger, ping func() error) error {
	err := retry.Call(retry.CallArgs{
		Func: ping,
		NotifyFunc: func(lastError error, attempt int) {
			log.Infof("connecting to %s (attempt %d): %v", what, attempt, lastError)
		},
		Attempts:    connectAttempts,
		Delay:       connectDelay,
		MaxDelay:    connectMaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       clk,
		Stop:        ctx.Done(),
	})
	if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
		err = retry.LastError(err)
	}
	return errors.Annotatef(err, "connecting to %s", what)
}
