// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlstore_test

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	"github.com/mattn/go-sqlite3"
	gc "gopkg.in/check.v1"

	"github.com/juju/tasklease/internal/kv/sqlstore"
)

type errorsSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&errorsSuite{})

func (s *errorsSuite) TestIsErrRetryable(c *gc.C) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{{
		name:     "nil error",
		err:      nil,
		expected: false,
	}, {
		name:     "sqlite3 busy",
		err:      sqlite3.ErrBusy,
		expected: true,
	}, {
		name:     "sqlite3 locked",
		err:      sqlite3.ErrLocked,
		expected: true,
	}, {
		name:     "sqlite3 error struct busy",
		err:      sqlite3.Error{Code: sqlite3.ErrBusy},
		expected: true,
	}, {
		name:     "annotated busy",
		err:      errors.Annotate(sqlite3.ErrBusy, "committing"),
		expected: true,
	}, {
		name:     "database is locked",
		err:      errors.Errorf("database is locked"),
		expected: true,
	}, {
		name:     "bad connection",
		err:      errors.Errorf("bad connection"),
		expected: true,
	}, {
		name:     "checkpoint in progress",
		err:      errors.Errorf("checkpoint in progress"),
		expected: true,
	}, {
		name:     "constraint",
		err:      sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique},
		expected: false,
	}, {
		name:     "other",
		err:      errors.New("boom"),
		expected: false,
	}}

	for i, test := range tests {
		c.Logf("test %d: %s", i, test.name)
		c.Check(sqlstore.IsErrRetryable(test.err), gc.Equals, test.expected)
	}
}

func (s *errorsSuite) TestIsErrConstraintUnique(c *gc.C) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{{
		name:     "nil error",
		err:      nil,
		expected: false,
	}, {
		name:     "unique",
		err:      sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique},
		expected: true,
	}, {
		name:     "primary key",
		err:      sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey},
		expected: true,
	}, {
		name:     "not null",
		err:      sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull},
		expected: false,
	}, {
		name:     "dqlite text",
		err:      errors.New("UNIQUE constraint failed: kv.key"),
		expected: true,
	}}

	for i, test := range tests {
		c.Logf("test %d: %s", i, test.name)
		c.Check(sqlstore.IsErrConstraintUnique(test.err), gc.Equals, test.expected)
	}
}
