// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lease_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"go.uber.org/mock/gomock"
	gc "gopkg.in/check.v1"

	"github.com/juju/tasklease/core/kv"
	corelease "github.com/juju/tasklease/core/lease"
	"github.com/juju/tasklease/internal/lease"
	"github.com/juju/tasklease/internal/lease/mocks"
	loggertesting "github.com/juju/tasklease/internal/logger/testing"
	coretesting "github.com/juju/tasklease/internal/testing"
)

// handlerMockSuite drives the handler against mocked transactions, to
// pin down exactly which store calls each decision makes.
type handlerMockSuite struct {
	testing.IsolationSuite

	clock *testclock.Clock
	node  uuid.UUID
	key   string

	store *mocks.MockStore
	txn   *mocks.MockTransaction
	log   *loggertesting.RecordingLogger
}

var _ = gc.Suite(&handlerMockSuite{})

func (s *handlerMockSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = coretesting.NewClock()
	s.node = uuid.New()
	s.key = corelease.Key(corelease.IndexCompaction)
}

func (s *handlerMockSuite) setupMocks(c *gc.C) *gomock.Controller {
	ctrl := gomock.NewController(c)
	s.store = mocks.NewMockStore(ctrl)
	s.txn = mocks.NewMockTransaction(ctrl)
	s.log = loggertesting.NewRecordingLogger(c)
	return ctrl
}

func (s *handlerMockSuite) newHandler(c *gc.C) *lease.Handler {
	h, err := lease.NewHandler(lease.HandlerConfig{
		NodeID:   s.node,
		TaskType: corelease.IndexCompaction,
		Duration: leaseDuration,
		Store:    s.store,
		Clock:    s.clock,
		Logger:   s.log,
	})
	c.Assert(err, jc.ErrorIsNil)
	return h
}

func (s *handlerMockSuite) encode(c *gc.C, owner uuid.UUID, expiry time.Duration) []byte {
	data, err := corelease.Encode(corelease.Lease{
		TaskType:   corelease.IndexCompaction,
		Owner:      owner,
		Expiration: coretesting.Offset(expiry),
	})
	c.Assert(err, jc.ErrorIsNil)
	return data
}

// expectRead sets up a read/write transaction whose read of the lease
// key returns data.
func (s *handlerMockSuite) expectRead(data []byte) {
	s.store.EXPECT().Begin(gomock.Any(), kv.ReadWrite).Return(s.txn, nil)
	s.txn.EXPECT().Get(gomock.Any(), s.key).Return(data, data != nil, nil)
	s.txn.EXPECT().Abort().Return(nil)
}

func (s *handlerMockSuite) TestBeginError(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.store.EXPECT().Begin(gomock.Any(), kv.ReadWrite).Return(nil, errors.New("connection refused"))

	owned, err := s.newHandler(c).CheckLease(context.Background())
	c.Check(err, gc.ErrorMatches, "checking index-compaction lease: connection refused")
	c.Check(owned, jc.IsFalse)
}

func (s *handlerMockSuite) TestReadError(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.store.EXPECT().Begin(gomock.Any(), kv.ReadWrite).Return(s.txn, nil)
	s.txn.EXPECT().Get(gomock.Any(), s.key).Return(nil, false, errors.New("i/o timeout"))
	s.txn.EXPECT().Abort().Return(nil)

	owned, err := s.newHandler(c).CheckLease(context.Background())
	c.Check(err, gc.ErrorMatches, "reading index-compaction lease: i/o timeout")
	c.Check(owned, jc.IsFalse)
}

func (s *handlerMockSuite) TestAcquireWritesClaim(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectRead(nil)
	s.txn.EXPECT().Set(gomock.Any(), s.key, s.encode(c, s.node, leaseDuration)).Return(nil)
	s.txn.EXPECT().Commit(gomock.Any()).Return(nil)

	owned, err := s.newHandler(c).CheckLease(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(owned, jc.IsTrue)
}

func (s *handlerMockSuite) TestAcquireConflictIsNotAnError(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectRead(nil)
	s.txn.EXPECT().Set(gomock.Any(), s.key, gomock.Any()).Return(nil)
	s.txn.EXPECT().Commit(gomock.Any()).Return(errors.Annotate(kv.ErrConflict, `key "lease/index-compaction"`))

	owned, err := s.newHandler(c).CheckLease(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(owned, jc.IsFalse)
	c.Check(s.log.Messages(), jc.DeepEquals, []string{
		"DEBUG: lost race to acquire index-compaction lease",
	})
}

func (s *handlerMockSuite) TestAcquireCommitError(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectRead(s.encode(c, uuid.New(), -time.Second))
	s.txn.EXPECT().Set(gomock.Any(), s.key, gomock.Any()).Return(nil)
	s.txn.EXPECT().Commit(gomock.Any()).Return(errors.New("disk full"))

	owned, err := s.newHandler(c).CheckLease(context.Background())
	c.Check(err, gc.ErrorMatches, "committing index-compaction lease: disk full")
	c.Check(err, gc.Not(jc.Satisfies), kv.IsConflict)
	c.Check(owned, jc.IsFalse)
}

func (s *handlerMockSuite) TestHeldLeaseIsNotWritten(c *gc.C) {
	defer s.setupMocks(c).Finish()

	// No Set or Commit is expected.
	s.expectRead(s.encode(c, s.node, 6*time.Second))

	owned, err := s.newHandler(c).CheckLease(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(owned, jc.IsTrue)
}

func (s *handlerMockSuite) TestOtherOwnerIsNotWritten(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectRead(s.encode(c, uuid.New(), time.Second))

	owned, err := s.newHandler(c).CheckLease(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(owned, jc.IsFalse)
}

func (s *handlerMockSuite) TestRenewalConflictKeepsOwnership(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectRead(s.encode(c, s.node, 2*time.Second))
	s.txn.EXPECT().Set(gomock.Any(), s.key, s.encode(c, s.node, leaseDuration)).Return(nil)
	s.txn.EXPECT().Commit(gomock.Any()).Return(kv.ErrConflict)

	owned, err := s.newHandler(c).CheckLease(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(owned, jc.IsTrue)
	c.Check(s.log.Messages(), jc.DeepEquals, []string{
		"WARNING: renewing index-compaction lease conflicted with another writer",
	})
}

func (s *handlerMockSuite) TestRenewalCommitErrorKeepsOwnership(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectRead(s.encode(c, s.node, 2*time.Second))
	s.txn.EXPECT().Set(gomock.Any(), s.key, gomock.Any()).Return(nil)
	s.txn.EXPECT().Commit(gomock.Any()).Return(errors.New("disk full"))

	owned, err := s.newHandler(c).CheckLease(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(owned, jc.IsTrue)
	c.Check(s.log.Messages(), jc.DeepEquals, []string{
		"WARNING: renewing index-compaction lease, 2s remaining: committing index-compaction lease: disk full",
	})
}

func (s *handlerMockSuite) TestCheckValidLeaseOnlyReads(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.store.EXPECT().Begin(gomock.Any(), kv.ReadOnly).Return(s.txn, nil)
	s.txn.EXPECT().Get(gomock.Any(), s.key).Return(s.encode(c, s.node, time.Second), true, nil)
	s.txn.EXPECT().Abort().Return(nil)

	l, valid, err := s.newHandler(c).CheckValidLease(context.Background(), s.clock.Now())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(valid, jc.IsTrue)
	c.Check(l.Owner, gc.Equals, s.node)
}

func (s *handlerMockSuite) TestCheckValidLeaseBeginError(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.store.EXPECT().Begin(gomock.Any(), kv.ReadOnly).Return(nil, errors.New("connection refused"))

	_, valid, err := s.newHandler(c).CheckValidLease(context.Background(), s.clock.Now())
	c.Check(err, gc.ErrorMatches, "reading index-compaction lease: connection refused")
	c.Check(valid, jc.IsFalse)
}

func (s *handlerMockSuite) TestReleaseConflict(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectRead(s.encode(c, s.node, 8*time.Second))
	s.txn.EXPECT().Set(gomock.Any(), s.key, s.encode(c, s.node, 0)).Return(nil)
	s.txn.EXPECT().Commit(gomock.Any()).Return(kv.ErrConflict)

	released, err := s.newHandler(c).ReleaseLease(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(released, jc.IsFalse)
}
