// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package kvtesting holds a conformance suite that every kv.Store
// backend is expected to pass.
package kvtesting

import (
	"context"
	"fmt"
	"sync"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/tasklease/core/kv"
)

// StoreSuite exercises the kv.Store contract. Backends embed it and set
// NewStore before each test.
type StoreSuite struct {
	// NewStore returns an empty store. Keys used by each test are
	// prefixed with the test name, so shared backends need not be
	// cleared between tests.
	NewStore func(c *gc.C) kv.Store

	store  kv.Store
	prefix string
}

func (s *StoreSuite) SetUpTest(c *gc.C) {
	s.store = s.NewStore(c)
	s.prefix = c.TestName() + "/"
}

func (s *StoreSuite) key(name string) string {
	return s.prefix + name
}

func (s *StoreSuite) begin(c *gc.C, mode kv.Mode) kv.Transaction {
	txn, err := s.store.Begin(context.Background(), mode)
	c.Assert(err, jc.ErrorIsNil)
	return txn
}

func (s *StoreSuite) put(c *gc.C, key, value string) {
	txn := s.begin(c, kv.ReadWrite)
	_, _, err := txn.Get(context.Background(), key)
	c.Assert(err, jc.ErrorIsNil)
	err = txn.Set(context.Background(), key, []byte(value))
	c.Assert(err, jc.ErrorIsNil)
	err = txn.Commit(context.Background())
	c.Assert(err, jc.ErrorIsNil)
}

func (s *StoreSuite) get(c *gc.C, key string) (string, bool) {
	txn := s.begin(c, kv.ReadOnly)
	defer func() { _ = txn.Abort() }()
	value, found, err := txn.Get(context.Background(), key)
	c.Assert(err, jc.ErrorIsNil)
	return string(value), found
}

func (s *StoreSuite) TestGetAbsent(c *gc.C) {
	value, found := s.get(c, s.key("missing"))
	c.Check(found, jc.IsFalse)
	c.Check(value, gc.Equals, "")
}

func (s *StoreSuite) TestSetCommitGet(c *gc.C) {
	s.put(c, s.key("k"), "v1")

	value, found := s.get(c, s.key("k"))
	c.Check(found, jc.IsTrue)
	c.Check(value, gc.Equals, "v1")

	s.put(c, s.key("k"), "v2")
	value, _ = s.get(c, s.key("k"))
	c.Check(value, gc.Equals, "v2")
}

func (s *StoreSuite) TestBinaryValue(c *gc.C) {
	data := []byte{0, 1, 2, 0xff, 0, 0x7f}
	txn := s.begin(c, kv.ReadWrite)
	err := txn.Set(context.Background(), s.key("bin"), data)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(txn.Commit(context.Background()), jc.ErrorIsNil)

	value, found := s.get(c, s.key("bin"))
	c.Check(found, jc.IsTrue)
	c.Check([]byte(value), jc.DeepEquals, data)
}

func (s *StoreSuite) TestReadYourWrites(c *gc.C) {
	txn := s.begin(c, kv.ReadWrite)
	defer func() { _ = txn.Abort() }()

	err := txn.Set(context.Background(), s.key("k"), []byte("mine"))
	c.Assert(err, jc.ErrorIsNil)

	value, found, err := txn.Get(context.Background(), s.key("k"))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(found, jc.IsTrue)
	c.Check(string(value), gc.Equals, "mine")
}

func (s *StoreSuite) TestReadOnlyRejectsWrites(c *gc.C) {
	txn := s.begin(c, kv.ReadOnly)
	defer func() { _ = txn.Abort() }()

	err := txn.Set(context.Background(), s.key("k"), []byte("v"))
	c.Check(errors.Is(err, kv.ErrReadOnly), jc.IsTrue)
}

func (s *StoreSuite) TestAbortDiscardsWrites(c *gc.C) {
	txn := s.begin(c, kv.ReadWrite)
	err := txn.Set(context.Background(), s.key("k"), []byte("v"))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(txn.Abort(), jc.ErrorIsNil)

	_, found := s.get(c, s.key("k"))
	c.Check(found, jc.IsFalse)
}

func (s *StoreSuite) TestFinishedTransaction(c *gc.C) {
	txn := s.begin(c, kv.ReadWrite)
	c.Assert(txn.Commit(context.Background()), jc.ErrorIsNil)

	err := txn.Set(context.Background(), s.key("k"), []byte("v"))
	c.Check(errors.Is(err, kv.ErrTxnDone), jc.IsTrue)
	err = txn.Commit(context.Background())
	c.Check(errors.Is(err, kv.ErrTxnDone), jc.IsTrue)
	err = txn.Abort()
	c.Check(errors.Is(err, kv.ErrTxnDone), jc.IsTrue)
}

func (s *StoreSuite) TestConflictOnModifiedKey(c *gc.C) {
	key := s.key("k")
	s.put(c, key, "original")

	loser := s.begin(c, kv.ReadWrite)
	_, _, err := loser.Get(context.Background(), key)
	c.Assert(err, jc.ErrorIsNil)

	s.put(c, key, "winner")

	err = loser.Set(context.Background(), key, []byte("loser"))
	c.Assert(err, jc.ErrorIsNil)
	err = loser.Commit(context.Background())
	c.Check(err, jc.Satisfies, kv.IsConflict)

	value, _ := s.get(c, key)
	c.Check(value, gc.Equals, "winner")
}

func (s *StoreSuite) TestConflictOnInsertRace(c *gc.C) {
	key := s.key("k")

	first := s.begin(c, kv.ReadWrite)
	second := s.begin(c, kv.ReadWrite)
	for _, txn := range []kv.Transaction{first, second} {
		_, found, err := txn.Get(context.Background(), key)
		c.Assert(err, jc.ErrorIsNil)
		c.Assert(found, jc.IsFalse)
	}

	err := first.Set(context.Background(), key, []byte("first"))
	c.Assert(err, jc.ErrorIsNil)
	err = second.Set(context.Background(), key, []byte("second"))
	c.Assert(err, jc.ErrorIsNil)

	c.Assert(first.Commit(context.Background()), jc.ErrorIsNil)
	err = second.Commit(context.Background())
	c.Check(err, jc.Satisfies, kv.IsConflict)

	value, _ := s.get(c, key)
	c.Check(value, gc.Equals, "first")
}

func (s *StoreSuite) TestConflictOnReadOnlyKeyInReadSet(c *gc.C) {
	guard, target := s.key("guard"), s.key("target")
	s.put(c, guard, "g1")

	txn := s.begin(c, kv.ReadWrite)
	_, _, err := txn.Get(context.Background(), guard)
	c.Assert(err, jc.ErrorIsNil)

	s.put(c, guard, "g2")

	err = txn.Set(context.Background(), target, []byte("t"))
	c.Assert(err, jc.ErrorIsNil)
	err = txn.Commit(context.Background())
	c.Check(err, jc.Satisfies, kv.IsConflict)

	_, found := s.get(c, target)
	c.Check(found, jc.IsFalse)
}

func (s *StoreSuite) TestNoConflictOnUnrelatedKeys(c *gc.C) {
	a, b := s.key("a"), s.key("b")

	txn := s.begin(c, kv.ReadWrite)
	_, _, err := txn.Get(context.Background(), a)
	c.Assert(err, jc.ErrorIsNil)

	s.put(c, b, "other")

	err = txn.Set(context.Background(), a, []byte("mine"))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(txn.Commit(context.Background()), jc.ErrorIsNil)
}

func (s *StoreSuite) TestConcurrentInsertsSingleWinner(c *gc.C) {
	key := s.key("contended")
	const writers = 8

	var (
		wg, ready sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	// Every writer reads the absent key before any of them commits.
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		ready.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := context.Background()
			txn, err := s.store.Begin(ctx, kv.ReadWrite)
			if err == nil {
				_, _, err = txn.Get(ctx, key)
			}
			ready.Done()
			if err != nil {
				c.Errorf("unexpected read error: %v", err)
				return
			}

			<-start
			c.Check(txn.Set(ctx, key, []byte(fmt.Sprintf("writer-%d", i))), jc.ErrorIsNil)
			err = txn.Commit(ctx)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case kv.IsConflict(err):
				conflicts++
			default:
				c.Errorf("unexpected commit error: %v", err)
			}
		}(i)
	}
	ready.Wait()
	close(start)
	wg.Wait()

	c.Check(winners, gc.Equals, 1)
	c.Check(conflicts, gc.Equals, writers-1)
}
