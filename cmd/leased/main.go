// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Command leased runs maintenance tasks under cluster-wide task leases.
package main

import (
	"fmt"
	"os"

	"github.com/juju/tasklease/internal/cmd"
)

func main() {
	ctx, err := cmd.DefaultContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR %v\n", err)
		os.Exit(2)
	}
	os.Exit(cmd.Main(newSuperCommand(), ctx, os.Args[1:]))
}

func newSuperCommand() *cmd.SuperCommand {
	super := cmd.NewSuperCommand(cmd.SuperCommandParams{
		Name:    "leased",
		Purpose: "Run maintenance tasks under cluster-wide task leases.",
		Log: &cmd.Log{
			DefaultConfig: os.Getenv("LEASED_LOGGING_CONFIG"),
		},
	})
	super.Register(newRunCommand())
	super.Register(newStatusCommand())
	return super
}
