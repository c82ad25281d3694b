package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/davecgh/go-spew/spew"
	"github.com/hashicorp/go-hclog"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/cmd"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/netclient"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/ops"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/pixilock"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/shell"
	"github.com/pkg/errors"
)

func main() {
	c := cmd.New(
		"pixi-install-to-prefix",
		"Install a pixi lockfile environment into a prefix",
		installF,
	)

	os.Exit(c.Run(os.Args[1:]))
}

type installOpts struct {
	Lockfile    string   `short:"l" long:"lockfile" default:"pixi.lock" description:"path to the pixi lockfile"`
	Environment string   `short:"e" long:"environment" default:"default" description:"name of the pixi environment to install"`
	Platform    string   `short:"p" long:"platform" description:"platform to install for (default: host platform)"`
	Config      string   `short:"c" long:"config" description:"path to a pixi config file (default: none)"`
	Shells      []string `short:"s" long:"shell" description:"shell to write an activation script for (repeatable)" choice:"bash" choice:"zsh" choice:"fish" choice:"xonsh" choice:"powershell" choice:"cmd" choice:"nushell"`

	NoActivationScripts bool `long:"no-activation-scripts" description:"do not write activation scripts"`

	Verbose []bool `short:"v" long:"verbose" description:"increase logging (repeatable)"`
	Quiet   bool   `short:"q" long:"quiet" description:"disable logging"`

	Pos struct {
		Prefix string `positional-arg-name:"prefix" required:"yes" description:"directory to install the environment into"`
	} `positional-args:"yes"`
}

func (o *installOpts) Trace() bool {
	return !o.Quiet && len(o.Verbose) >= 4
}

func (o *installOpts) level() hclog.Level {
	if o.Quiet {
		return hclog.Off
	}

	switch len(o.Verbose) {
	case 0:
		return hclog.Error
	case 1:
		return hclog.Warn
	case 2:
		return hclog.Info
	case 3:
		return hclog.Debug
	default:
		return hclog.Trace
	}
}

func loadConfig(path string, L hclog.Logger) (*config.Config, error) {
	if path == "" {
		return nil, nil
	}

	L.Debug("using config file", "path", path)

	cfg, undecoded, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	for _, key := range undecoded {
		L.Warn("ignoring unknown config key", "key", key, "path", path)
	}

	if L.IsTrace() {
		L.Trace("loaded config", "config", spew.Sdump(cfg))
	}

	return cfg, nil
}

// absPrefix resolves the prefix so that paths written into the prefix and
// its activation scripts are absolute.
func absPrefix(prefix string) (string, error) {
	abs, err := filepath.Abs(prefix)
	if err != nil {
		return "", err
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	return abs, nil
}

func installF(ctx context.Context, opts installOpts) error {
	if opts.NoActivationScripts && len(opts.Shells) > 0 {
		return &cmd.UsageError{Msg: "--shell cannot be used together with --no-activation-scripts"}
	}

	L := hclog.New(&hclog.LoggerOptions{
		Name:   "pixi-install-to-prefix",
		Level:  opts.level(),
		Output: os.Stderr,
	})

	platform := config.Current()

	if opts.Platform != "" {
		p, err := config.ParsePlatform(opts.Platform)
		if err != nil {
			return &cmd.UsageError{Msg: err.Error()}
		}

		platform = p
	}

	var shells []shell.Shell

	for _, name := range opts.Shells {
		sh, err := shell.Parse(name)
		if err != nil {
			return &cmd.UsageError{Msg: err.Error()}
		}

		shells = append(shells, sh)
	}

	cfg, err := loadConfig(opts.Config, L)
	if err != nil {
		return err
	}

	client, err := netclient.Build(cfg, L)
	if err != nil {
		return errors.Wrapf(err, "failed to create download client")
	}

	lf, err := pixilock.Load(opts.Lockfile)
	if err != nil {
		return err
	}

	var lr ops.LockResolve
	lr.SetLogger(L)

	records, err := lr.Resolve(lf, opts.Environment, platform)
	if err != nil {
		return err
	}

	prefix, err := absPrefix(opts.Pos.Prefix)
	if err != nil {
		return errors.Wrapf(err, "resolving prefix %s", opts.Pos.Prefix)
	}

	pi := ops.PrefixInstall{
		Concurrency: cfg.DownloadConcurrency(),
		Args:        os.Args,
	}
	pi.SetLogger(L)

	summary, err := pi.Install(ctx, prefix, platform, records, client)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Installed %d packages to %s\n", summary.Operations, opts.Pos.Prefix)

	if opts.NoActivationScripts {
		return nil
	}

	if len(shells) == 0 {
		shells = ops.DefaultShells(platform)
	}

	var aw ops.ActivationWrite
	aw.SetLogger(L)

	return aw.Generate(prefix, shells, platform)
}
