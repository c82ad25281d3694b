package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// Config is the subset of a pixi configuration file that affects how
// packages are downloaded.
type Config struct {
	path string

	DefaultChannels            []string             `toml:"default-channels"`
	AuthenticationOverrideFile string               `toml:"authentication-override-file"`
	TLSNoVerify                bool                 `toml:"tls-no-verify"`
	Mirrors                    map[string][]string  `toml:"mirrors"`
	S3Options                  map[string]S3Options `toml:"s3-options"`
	Proxy                      ProxyConfig          `toml:"proxy-config"`
	Concurrency                Concurrency          `toml:"concurrency"`

	mirrors []Mirror
}

type S3Options struct {
	EndpointURL    string `toml:"endpoint-url"`
	Region         string `toml:"region"`
	ForcePathStyle bool   `toml:"force-path-style"`
}

type ProxyConfig struct {
	HTTPS         string   `toml:"https"`
	HTTP          string   `toml:"http"`
	NonProxyHosts []string `toml:"non-proxy-hosts"`
}

type Concurrency struct {
	Downloads int `toml:"downloads"`
}

// Mirror maps one channel origin onto an ordered list of mirror locations.
type Mirror struct {
	Origin  *url.URL
	Targets []*url.URL
}

const DefaultDownloadConcurrency = 50

// Error reports a configuration file that could not be read or parsed.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to parse config file %s: %s", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Load reads a pixi config file. The returned slice lists keys present in the
// file that this tool does not understand.
func Load(path string) (*Config, []string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, nil, &Error{Path: path, Err: err}
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, nil, &Error{Path: path, Err: err}
	}

	cfg, undecoded, err := Parse(string(data))
	if err != nil {
		return nil, nil, &Error{Path: path, Err: err}
	}

	cfg.path = expanded

	if cfg.AuthenticationOverrideFile != "" {
		p, err := homedir.Expand(cfg.AuthenticationOverrideFile)
		if err != nil {
			return nil, nil, &Error{Path: path, Err: err}
		}

		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(expanded), p)
		}

		cfg.AuthenticationOverrideFile = p
	}

	return cfg, undecoded, nil
}

// Parse decodes config data that has already been read into memory.
func Parse(data string) (*Config, []string, error) {
	var cfg Config

	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, nil, err
	}

	var undecoded []string
	for _, k := range md.Undecoded() {
		undecoded = append(undecoded, k.String())
	}

	for origin, targets := range cfg.Mirrors {
		ou, err := url.Parse(origin)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "invalid mirror origin %q", origin)
		}

		m := Mirror{Origin: ou}

		for _, t := range targets {
			tu, err := url.Parse(t)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "invalid mirror %q for %s", t, origin)
			}

			m.Targets = append(m.Targets, tu)
		}

		cfg.mirrors = append(cfg.mirrors, m)
	}

	sort.Slice(cfg.mirrors, func(i, j int) bool {
		return cfg.mirrors[i].Origin.String() < cfg.mirrors[j].Origin.String()
	})

	if cfg.Concurrency.Downloads < 0 {
		return nil, nil, fmt.Errorf("concurrency.downloads must be positive, got %d", cfg.Concurrency.Downloads)
	}

	return &cfg, undecoded, nil
}

// Path is the file the config was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

// MirrorMap returns the configured mirrors ordered by origin URL.
func (c *Config) MirrorMap() []Mirror {
	return c.mirrors
}

// ComputeS3Config returns the per-bucket S3 options.
func (c *Config) ComputeS3Config() map[string]S3Options {
	out := make(map[string]S3Options, len(c.S3Options))
	for bucket, opts := range c.S3Options {
		out[bucket] = opts
	}

	return out
}

// DownloadConcurrency is the maximum number of parallel downloads.
func (c *Config) DownloadConcurrency() int {
	if c == nil || c.Concurrency.Downloads == 0 {
		return DefaultDownloadConcurrency
	}

	return c.Concurrency.Downloads
}
