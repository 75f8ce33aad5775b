// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package app_test

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/tasklease/internal/database/app"
	loggertesting "github.com/juju/tasklease/internal/logger/testing"
)

type configSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&configSuite{})

func (s *configSuite) TestValidate(c *gc.C) {
	valid := app.Config{
		Dir:     c.MkDir(),
		Address: "127.0.0.1:9666",
		Logger:  loggertesting.WrapCheckLog(c),
	}
	c.Check(valid.Validate(), jc.ErrorIsNil)

	cfg := valid
	cfg.Dir = ""
	c.Check(cfg.Validate(), gc.ErrorMatches, "empty Dir not valid")

	cfg = valid
	cfg.Address = ""
	c.Check(cfg.Validate(), gc.ErrorMatches, "empty Address not valid")

	cfg = valid
	cfg.Logger = nil
	c.Check(cfg.Validate(), jc.Satisfies, errors.IsNotValid)
}

func (s *configSuite) TestNewWithoutDqlite(c *gc.C) {
	if app.Supported {
		c.Skip("built with dqlite")
	}
	_, err := app.New(app.Config{
		Dir:     c.MkDir(),
		Address: "127.0.0.1:9666",
		Logger:  loggertesting.WrapCheckLog(c),
	})
	c.Check(err, jc.Satisfies, errors.IsNotSupported)
}
