// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lease_test

import (
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/tasklease/core/lease"
)

type leaseSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&leaseSuite{})

func (s *leaseSuite) TestValidAt(c *gc.C) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	l := lease.Lease{Owner: uuid.New(), Expiration: now.Add(time.Second)}

	c.Check(l.ValidAt(now), jc.IsTrue)
	c.Check(l.ValidAt(now.Add(time.Second)), jc.IsFalse)
	c.Check(l.ValidAt(now.Add(2*time.Second)), jc.IsFalse)
}

func (s *leaseSuite) TestRemaining(c *gc.C) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	l := lease.Lease{Owner: uuid.New(), Expiration: now.Add(10 * time.Second)}

	c.Check(l.Remaining(now.Add(4*time.Second)), gc.Equals, 6*time.Second)
	c.Check(l.Remaining(now.Add(12*time.Second)), gc.Equals, -2*time.Second)
}

func (s *leaseSuite) TestHeldBy(c *gc.C) {
	owner := uuid.New()
	l := lease.Lease{Owner: owner}

	c.Check(l.HeldBy(owner), jc.IsTrue)
	c.Check(l.HeldBy(uuid.New()), jc.IsFalse)
}

func (s *leaseSuite) TestParseTaskType(c *gc.C) {
	for _, t := range lease.AllTaskTypes() {
		parsed, err := lease.ParseTaskType(t.String())
		c.Check(err, jc.ErrorIsNil)
		c.Check(parsed, gc.Equals, t)
	}

	_, err := lease.ParseTaskType("vacuum")
	c.Check(err, jc.Satisfies, errors.IsNotValid)
	c.Check(err, gc.ErrorMatches, `task type "vacuum" not valid`)
}
