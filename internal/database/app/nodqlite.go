//go:build !dqlite || !linux

// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package app

import (
	"context"
	"database/sql"

	"github.com/juju/errors"
)

// Supported reports whether this binary was built with dqlite.
const Supported = false

// App is unavailable without the dqlite build tag.
type App struct{}

// New always fails: this binary was built without dqlite.
func New(config Config) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return nil, errors.NotSupportedf("dqlite (rebuild with -tags dqlite)")
}

// Open is never reachable, as New never returns an App.
func (a *App) Open(context.Context, string) (*sql.DB, error) {
	return nil, errors.NotSupportedf("dqlite")
}

// Close does nothing.
func (a *App) Close() error {
	return nil
}
