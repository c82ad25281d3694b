package engine

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/netclient"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/progress"
)

// EnvCacheDir overrides the location of the package cache.
const EnvCacheDir = "RATTLER_CACHE_DIR"

// Options control a single installation.
type Options struct {
	// Platform of the packages being installed. It decides the prefix
	// layout used for noarch python packages and link scripts.
	Platform config.Platform

	// Client fetches package archives. A nil Client uses a client built
	// without any configuration.
	Client *netclient.Client

	ExecuteLinkScripts bool

	Reporter *progress.Reporter

	// CacheDir holds downloaded and extracted packages. Defaults to
	// DefaultCacheDir.
	CacheDir string

	// Concurrency bounds parallel downloads. Defaults to
	// config.DefaultDownloadConcurrency.
	Concurrency int

	L hclog.Logger
}

// DefaultCacheDir returns $RATTLER_CACHE_DIR, or rattler/cache/pkgs under
// the user cache directory.
func DefaultCacheDir() (string, error) {
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		return dir, nil
	}

	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, "rattler", "cache", "pkgs"), nil
}

func (o *Options) withDefaults() (*Options, error) {
	out := *o

	if out.L == nil {
		out.L = hclog.NewNullLogger()
	}

	if out.Platform == "" {
		out.Platform = config.Current()
	}

	if out.CacheDir == "" {
		dir, err := DefaultCacheDir()
		if err != nil {
			return nil, err
		}

		out.CacheDir = dir
	}

	if out.Concurrency <= 0 {
		out.Concurrency = config.DefaultDownloadConcurrency
	}

	if out.Client == nil {
		client, err := netclient.Build(nil, out.L)
		if err != nil {
			return nil, err
		}

		out.Client = client
	}

	return &out, nil
}
