package cmd

import (
	"context"
	"testing"

	"github.com/mitchellh/cli"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOpts struct {
	Name    string `short:"n" long:"name" default:"world"`
	Verbose []bool `short:"v" long:"verbose"`

	Pos struct {
		Target string `positional-arg-name:"target" required:"yes"`
	} `positional-args:"yes"`
}

func (o *testOpts) Trace() bool {
	return len(o.Verbose) >= 2
}

func TestCmd(t *testing.T) {
	t.Run("passes parsed options", func(t *testing.T) {
		var got testOpts

		c := New("test", "a test command", func(ctx context.Context, opts testOpts) error {
			got = opts
			require.NotNil(t, ctx)
			return nil
		})

		ui := cli.NewMockUi()
		c.UI = ui

		assert.Equal(t, 0, c.Run([]string{"-n", "pixi", "-v", "-v", "/opt/env"}))
		assert.Equal(t, "pixi", got.Name)
		assert.Len(t, got.Verbose, 2)
		assert.Equal(t, "/opt/env", got.Pos.Target)
		assert.Empty(t, ui.ErrorWriter.String())
	})

	t.Run("missing positional arguments", func(t *testing.T) {
		c := New("test", "a test command", func(ctx context.Context, opts testOpts) error {
			t.Fatal("must not run")
			return nil
		})

		ui := cli.NewMockUi()
		c.UI = ui

		assert.Equal(t, 2, c.Run(nil))
		assert.Contains(t, ui.ErrorWriter.String(), "target")
	})

	t.Run("help", func(t *testing.T) {
		c := New("test", "a test command", func(ctx context.Context, opts testOpts) error {
			return nil
		})

		ui := cli.NewMockUi()
		c.UI = ui

		assert.Equal(t, 0, c.Run([]string{"--help"}))
		assert.Contains(t, ui.OutputWriter.String(), "--name")
		assert.Contains(t, c.Help(), "--verbose")
		assert.Equal(t, "a test command", c.Synopsis())
	})

	t.Run("errors", func(t *testing.T) {
		c := New("test", "a test command", func(ctx context.Context, opts testOpts) error {
			return errors.Wrap(errors.New("disk full"), "writing history")
		})

		ui := cli.NewMockUi()
		c.UI = ui

		assert.Equal(t, 1, c.Run([]string{"/opt/env"}))
		assert.Equal(t, "! Error: writing history: disk full\n", ui.ErrorWriter.String())
	})

	t.Run("errors with traces", func(t *testing.T) {
		c := New("test", "a test command", func(ctx context.Context, opts testOpts) error {
			return errors.Wrap(errors.New("disk full"), "writing history")
		})

		ui := cli.NewMockUi()
		c.UI = ui

		assert.Equal(t, 1, c.Run([]string{"-vv", "/opt/env"}))
		assert.Contains(t, ui.ErrorWriter.String(), "TestCmd")
	})

	t.Run("usage errors", func(t *testing.T) {
		c := New("test", "a test command", func(ctx context.Context, opts testOpts) error {
			return &UsageError{Msg: "--name cannot be empty"}
		})

		ui := cli.NewMockUi()
		c.UI = ui

		assert.Equal(t, 2, c.Run([]string{"/opt/env"}))
		assert.Contains(t, ui.ErrorWriter.String(), "--name cannot be empty")
		assert.Contains(t, ui.ErrorWriter.String(), "Usage:")
	})
}
