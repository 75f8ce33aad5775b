// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package redisstore_test

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/tasklease/internal/kv/redisstore"
)

type configSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&configSuite{})

func (s *configSuite) TestNilClient(c *gc.C) {
	_, err := redisstore.NewStore(nil, "tasklease/")
	c.Check(err, jc.Satisfies, errors.IsNotValid)
}
