//go:build dqlite && linux

// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/canonical/go-dqlite/v2/app"
	"github.com/canonical/go-dqlite/v2/client"
	"github.com/juju/errors"

	"github.com/juju/tasklease/core/logger"
)

// Supported reports whether this binary was built with dqlite.
const Supported = true

// App is a dqlite node that shares a replicated database with the rest
// of the cluster.
type App struct {
	app    *app.App
	logger logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// New starts a dqlite node with its data in config.Dir.
func New(config Config) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	options := []app.Option{
		app.WithAddress(config.Address),
		app.WithLogFunc(logFunc(config.Logger)),
	}
	if len(config.Cluster) > 0 {
		options = append(options, app.WithCluster(config.Cluster))
	}

	node, err := app.New(config.Dir, options...)
	if err != nil {
		return nil, errors.Annotatef(err, "starting dqlite node at %s", config.Address)
	}
	return &App{
		app:    node,
		logger: config.Logger,
	}, nil
}

// Open waits for the node to join the cluster and returns a handle on
// the named database.
func (a *App) Open(ctx context.Context, name string) (*sql.DB, error) {
	if err := a.app.Ready(ctx); err != nil {
		return nil, errors.Annotate(err, "waiting for dqlite cluster")
	}
	db, err := a.app.Open(ctx, name)
	if err != nil {
		return nil, errors.Annotatef(err, "opening dqlite database %q", name)
	}
	return db, nil
}

// Close hands off any leadership and stops the node. Only the first call
// does any work; later calls return the same result.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		if err := a.app.Handover(context.Background()); err != nil {
			a.logger.Warningf("dqlite handover: %v", err)
		}
		a.closeErr = a.app.Close()
	})
	return errors.Trace(a.closeErr)
}

func logFunc(log logger.Logger) client.LogFunc {
	return func(level client.LogLevel, format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		switch level {
		case client.LogError:
			log.Errorf("%s", msg)
		case client.LogWarn:
			log.Warningf("%s", msg)
		case client.LogInfo:
			log.Infof("%s", msg)
		default:
			log.Debugf("%s", msg)
		}
	}
}
