// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

//go:build integration

package etcdstore_test

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	clientv3 "go.etcd.io/etcd/client/v3"
	gc "gopkg.in/check.v1"

	"github.com/juju/tasklease/core/kv"
	"github.com/juju/tasklease/internal/kv/etcdstore"
	"github.com/juju/tasklease/internal/kv/kvtesting"
)

// integrationSuite runs the store conformance tests against the etcd
// cluster at $ETCD_ENDPOINTS (default localhost:2379).
type integrationSuite struct {
	testing.IsolationSuite
	kvtesting.StoreSuite

	client *clientv3.Client
}

var _ = gc.Suite(&integrationSuite{})

func (s *integrationSuite) SetUpSuite(c *gc.C) {
	s.IsolationSuite.SetUpSuite(c)

	endpoints := []string{"localhost:2379"}
	if env := os.Getenv("ETCD_ENDPOINTS"); env != "" {
		endpoints = strings.Split(env, ",")
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		c.Skip("etcd unreachable: " + err.Error())
	}
	s.client = client

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Status(ctx, endpoints[0]); err != nil {
		c.Skip("etcd unreachable: " + err.Error())
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

	prefix := "/tasklease-test/" + uuid.NewString() + "/"
	s.StoreSuite.NewStore = func(c *gc.C) kv.Store {
		store, err := etcdstore.NewStore(s.client, prefix)
		c.Assert(err, jc.ErrorIsNil)
		return store
	}
	s.StoreSuite.SetUpTest(c)
}
