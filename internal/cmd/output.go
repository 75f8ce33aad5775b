// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"gopkg.in/yaml.v3"
)

// Formatter writes an arbitrary value to w.
type Formatter func(w io.Writer, value any) error

// FormatYaml writes value as YAML.
func FormatYaml(w io.Writer, value any) error {
	if value == nil {
		return nil
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(value); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(enc.Close())
}

// FormatJson writes value as a single line of JSON.
func FormatJson(w io.Writer, value any) error {
	if value == nil {
		return nil
	}
	return errors.Trace(json.NewEncoder(w).Encode(value))
}

// DefaultFormatters are the formatters every command supports.
var DefaultFormatters = map[string]Formatter{
	"yaml": FormatYaml,
	"json": FormatJson,
}

// formatterValue implements gnuflag.Value for the --format flag.
type formatterValue struct {
	name       string
	formatters map[string]Formatter
}

func newFormatterValue(initial string, formatters map[string]Formatter) *formatterValue {
	v := &formatterValue{formatters: formatters}
	if err := v.Set(initial); err != nil {
		panic(err)
	}
	return v
}

// Set stores the chosen formatter name in v.name.
func (v *formatterValue) Set(value string) error {
	if v.formatters[value] == nil {
		return errors.NotValidf("format %q", value)
	}
	v.name = value
	return nil
}

// String returns the chosen formatter name.
func (v *formatterValue) String() string {
	return v.name
}

func (v *formatterValue) doc() string {
	choices := make([]string, 0, len(v.formatters))
	for name := range v.formatters {
		choices = append(choices, name)
	}
	sort.Strings(choices)
	return "specify output format (" + strings.Join(choices, "|") + ")"
}

// Output interprets the --format and --output flags and writes a value
// accordingly.
type Output struct {
	formatter *formatterValue
	outPath   string
}

// AddFlags injects the output flags into f. The default formatter must
// be one of formatters.
func (c *Output) AddFlags(f *gnuflag.FlagSet, defaultFormatter string, formatters map[string]Formatter) {
	c.formatter = newFormatterValue(defaultFormatter, formatters)
	f.Var(c.formatter, "format", c.formatter.doc())
	f.StringVar(&c.outPath, "o", "", "specify an output file")
	f.StringVar(&c.outPath, "output", "", "")
}

// Name returns the selected formatter's name.
func (c *Output) Name() string {
	return c.formatter.name
}

// Write formats value and writes it to the output file, or to stdout.
func (c *Output) Write(ctx *Context, value any) error {
	if c.outPath == "" {
		return c.formatter.formatters[c.formatter.name](ctx.Stdout, value)
	}
	target, err := os.Create(ctx.AbsPath(c.outPath))
	if err != nil {
		return errors.Trace(err)
	}
	if err := c.formatter.formatters[c.formatter.name](target, value); err != nil {
		_ = target.Close()
		return errors.Trace(err)
	}
	return errors.Trace(target.Close())
}
