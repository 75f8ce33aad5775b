// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/juju/tasklease/core/logger"
)

var cmdLogger = logger.GetLogger("cmd")

// SuperCommandParams configures a SuperCommand.
type SuperCommandParams struct {
	Name    string
	Purpose string
	Doc     string

	// Log holds the logging flags shared by every subcommand. If nil,
	// no logging flags are configured.
	Log *Log
}

// SuperCommand is a Command that selects a subcommand based on its
// first positional argument.
type SuperCommand struct {
	params  SuperCommandParams
	subcmds map[string]Command

	subcmd   Command
	subflags *gnuflag.FlagSet
}

// NewSuperCommand returns a SuperCommand with no subcommands.
func NewSuperCommand(params SuperCommandParams) *SuperCommand {
	return &SuperCommand{
		params:  params,
		subcmds: make(map[string]Command),
	}
}

// Register makes a subcommand available. Registering two commands with
// the same name panics.
func (c *SuperCommand) Register(sub Command) {
	name := sub.Info().Name
	if _, found := c.subcmds[name]; found {
		panic(fmt.Sprintf("command already registered: %q", name))
	}
	c.subcmds[name] = sub
}

// Info is part of the Command interface.
func (c *SuperCommand) Info() *Info {
	names := make([]string, 0, len(c.subcmds))
	for name := range c.subcmds {
		names = append(names, name)
	}
	sort.Strings(names)

	var doc strings.Builder
	doc.WriteString(c.params.Doc)
	if doc.Len() > 0 {
		doc.WriteString("\n\n")
	}
	doc.WriteString("Commands:\n")
	for _, name := range names {
		fmt.Fprintf(&doc, "    %-10s - %s\n", name, c.subcmds[name].Info().Purpose)
	}
	return &Info{
		Name:    c.params.Name,
		Args:    "<command> ...",
		Purpose: c.params.Purpose,
		Doc:     doc.String(),
	}
}

// SetFlags is part of the Command interface.
func (c *SuperCommand) SetFlags(f *gnuflag.FlagSet) {
	if c.params.Log != nil {
		c.params.Log.AddFlags(f)
	}
}

// Init is part of the Command interface. It selects the subcommand and
// parses the remaining arguments into it.
func (c *SuperCommand) Init(args []string) error {
	if len(args) == 0 {
		return errors.New("no command specified")
	}
	name, rest := args[0], args[1:]
	if name == "help" {
		c.subcmd = &helpCommand{super: c}
		return c.subcmd.Init(rest)
	}
	sub, found := c.subcmds[name]
	if !found {
		return errors.NotFoundf("command %q", name)
	}

	c.subcmd = sub
	c.subflags = gnuflag.NewFlagSet(c.params.Name+" "+name, gnuflag.ContinueOnError)
	c.subflags.SetOutput(io.Discard)
	sub.SetFlags(c.subflags)
	if err := c.subflags.Parse(sub.Info().Intersperse, rest); err == gnuflag.ErrHelp {
		c.subcmd = &helpCommand{super: c, target: sub}
		return nil
	} else if err != nil {
		return errors.Trace(err)
	}
	return sub.Init(c.subflags.Args())
}

// Run is part of the Command interface.
func (c *SuperCommand) Run(ctx *Context) error {
	if c.subcmd == nil {
		return errors.New("no command specified")
	}
	if c.params.Log != nil {
		if err := c.params.Log.Start(ctx); err != nil {
			return errors.Trace(err)
		}
	}
	cmdLogger.Debugf("running %s %s", c.params.Name, c.subcmd.Info().Name)
	return c.subcmd.Run(ctx)
}

// helpCommand prints the usage of a subcommand, or of the super command
// itself.
type helpCommand struct {
	CommandBase
	super  *SuperCommand
	target Command
}

func (c *helpCommand) Info() *Info {
	return &Info{
		Name:    "help",
		Args:    "[command]",
		Purpose: "Show help on a command.",
	}
}

func (c *helpCommand) Init(args []string) error {
	if len(args) == 0 {
		c.target = c.super
		return nil
	}
	sub, found := c.super.subcmds[args[0]]
	if !found {
		return errors.NotFoundf("command %q", args[0])
	}
	c.target = sub
	return CheckEmpty(args[1:])
}

func (c *helpCommand) Run(ctx *Context) error {
	f := gnuflag.NewFlagSet(c.target.Info().Name, gnuflag.ContinueOnError)
	f.SetOutput(io.Discard)
	c.target.SetFlags(f)
	PrintUsage(ctx.Stdout, c.target, f)
	return nil
}
