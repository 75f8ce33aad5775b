// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

//go:build integration

package redisstore_test

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/redis/go-redis/v9"
	gc "gopkg.in/check.v1"

	"github.com/juju/tasklease/core/kv"
	"github.com/juju/tasklease/internal/kv/kvtesting"
	"github.com/juju/tasklease/internal/kv/redisstore"
)

// integrationSuite runs the store conformance tests against the Redis
// server at $REDIS_ADDR (default localhost:6379).
type integrationSuite struct {
	testing.IsolationSuite
	kvtesting.StoreSuite

	client *redis.Client
}

var _ = gc.Suite(&integrationSuite{})

func (s *integrationSuite) SetUpSuite(c *gc.C) {
	s.IsolationSuite.SetUpSuite(c)

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	s.client = redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		c.Skip("redis unreachable: " + err.Error())
	}
}

func (s *integrationSuite) TearDownSuite(c *gc.C) {
	if s.client != nil {
		_ = s.client.Close()
	}
	s.IsolationSuite.TearDownSuite(c)
}

func (s *integrationSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)

	// A fresh prefix per test keeps runs independent without flushing
	// a database that may be shared.
	prefix := "tasklease-test/" + uuid.NewString() + "/"
	s.StoreSuite.NewStore = func(c *gc.C) kv.Store {
		store, err := redisstore.NewStore(s.client, prefix)
		c.Assert(err, jc.ErrorIsNil)
		return store
	}
	s.StoreSuite.SetUpTest(c)
}
