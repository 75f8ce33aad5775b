// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd

import (
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"
)

// Log supplies the logging flags of a SuperCommand and configures
// loggo from them before the subcommand runs.
type Log struct {
	// DefaultConfig is used when --logging-config is not given.
	DefaultConfig string

	Config  string
	Verbose bool
	Debug   bool
}

// AddFlags adds the logging flags to f.
func (l *Log) AddFlags(f *gnuflag.FlagSet) {
	f.StringVar(&l.Config, "logging-config", l.DefaultConfig, "specify log levels for modules")
	f.BoolVar(&l.Verbose, "v", false, "show more verbose output")
	f.BoolVar(&l.Verbose, "verbose", false, "")
	f.BoolVar(&l.Debug, "debug", false, "equivalent to --logging-config=<root>=DEBUG")
}

// Start sends log output to ctx.Stderr at the configured levels.
func (l *Log) Start(ctx *Context) error {
	writer := loggo.NewSimpleWriter(ctx.Stderr, loggo.DefaultFormatter)
	if _, err := loggo.ReplaceDefaultWriter(writer); err != nil {
		return errors.Trace(err)
	}

	config := l.Config
	switch {
	case l.Debug:
		config = "<root>=DEBUG;" + config
	case l.Verbose:
		config = "<root>=INFO;" + config
	}
	if err := loggo.ConfigureLoggers(config); err != nil {
		return errors.Annotate(err, "configuring loggers")
	}
	return nil
}
