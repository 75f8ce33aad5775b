// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package memory_test

import (
	"context"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/tasklease/core/kv"
	"github.com/juju/tasklease/internal/kv/kvtesting"
	"github.com/juju/tasklease/internal/kv/memory"
)

type storeSuite struct {
	testing.IsolationSuite
	kvtesting.StoreSuite
}

var _ = gc.Suite(&storeSuite{})

func (s *storeSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.StoreSuite.NewStore = func(*gc.C) kv.Store {
		return memory.NewStore()
	}
	s.StoreSuite.SetUpTest(c)
}

func (s *storeSuite) TestVersionAdvancesOnCommit(c *gc.C) {
	store := memory.NewStore()
	c.Check(store.Version("k"), gc.Equals, uint64(0))

	for i := 0; i < 2; i++ {
		txn, err := store.Begin(context.Background(), kv.ReadWrite)
		c.Assert(err, jc.ErrorIsNil)
		c.Assert(txn.Set(context.Background(), "k", []byte("v")), jc.ErrorIsNil)
		c.Assert(txn.Commit(context.Background()), jc.ErrorIsNil)
	}
	c.Check(store.Version("k"), gc.Equals, uint64(2))
}

func (s *storeSuite) TestReadOnlyCommitDoesNotWrite(c *gc.C) {
	store := memory.NewStore()
	txn, err := store.Begin(context.Background(), kv.ReadOnly)
	c.Assert(err, jc.ErrorIsNil)
	_, _, err = txn.Get(context.Background(), "k")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(txn.Commit(context.Background()), jc.ErrorIsNil)
	c.Check(store.Version("k"), gc.Equals, uint64(0))
}

func (s *storeSuite) TestBeginCancelledContext(c *gc.C) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := memory.NewStore().Begin(ctx, kv.ReadWrite)
	c.Check(err, gc.ErrorMatches, "context canceled")
}
