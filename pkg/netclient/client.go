package netclient

import (
	"net/http"
	"net/url"

	"github.com/hashicorp/go-hclog"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/auth"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/cleanhttp"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
	"github.com/pkg/errors"
)

// Version is reported in the user agent.
var Version = "0.1.0"

var (
	ErrAuthStorageInit = errors.New("failed to initialize authentication storage")
	ErrTransportInit   = errors.New("could not create download client")
)

// BuildError is returned by Build. Kind is ErrAuthStorageInit or
// ErrTransportInit.
type BuildError struct {
	Kind error
	Err  error
}

func (e *BuildError) Error() string {
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *BuildError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Client is the download client handed to the installation engine. It
// holds no mutable state after Build and may be shared by concurrent
// downloads.
type Client struct {
	http *http.Client
	auth *auth.Storage
}

// HTTPClient returns the client with every layer applied.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Auth returns the authentication storage the client was built with.
func (c *Client) Auth() *auth.Storage {
	return c.auth
}

func UserAgent() string {
	return "pixi-install-to-prefix/" + Version
}

// Build assembles the layered client. cfg may be nil. Requests pass the
// mirror layer first, then object storage resolution, then authentication,
// then the base transport.
func Build(cfg *config.Config, L hclog.Logger) (*Client, error) {
	if L == nil {
		L = hclog.NewNullLogger()
	}

	var override string
	if cfg != nil {
		override = cfg.AuthenticationOverrideFile
	}

	storage, err := auth.FromEnvAndDefaults(override)
	if err != nil {
		return nil, &BuildError{Kind: ErrAuthStorageInit, Err: err}
	}

	var (
		s3Config = map[string]config.S3Options{}
		mirrors  []*Mirror
		topts    = cleanhttp.Options{UserAgent: UserAgent()}
	)

	if cfg != nil {
		s3Config = cfg.ComputeS3Config()
		L.Info("using S3 config", "buckets", s3Config)

		mirrors, err = MirrorsFromConfig(cfg.MirrorMap())
		if err != nil {
			return nil, &BuildError{Kind: ErrTransportInit, Err: err}
		}

		L.Info("using mirrors", "map", describeMirrors(mirrors))

		topts.TLSNoVerify = cfg.TLSNoVerify
		topts.HTTPSProxy = cfg.Proxy.HTTPS
		topts.HTTPProxy = cfg.Proxy.HTTP
		topts.NonProxyHosts = cfg.Proxy.NonProxyHosts

		if cfg.TLSNoVerify {
			L.Warn("TLS certificate verification is disabled")
		}
	}

	base, err := cleanhttp.Transport(topts)
	if err != nil {
		return nil, &BuildError{Kind: ErrTransportInit, Err: err}
	}

	var rt http.RoundTripper = base

	rt = &authTransport{next: rt, storage: storage, L: L}
	rt = newObjectStoreTransport(rt, s3Config, storage, L)
	rt = newMirrorTransport(rt, mirrors, L)

	return &Client{
		http: cleanhttp.Client(rt, topts.UserAgent),
		auth: storage,
	}, nil
}

// EnsureTrailingSlash appends a "/" to u's path when it lacks one. The
// slash is added by string concatenation so that the last path segment is
// kept, which url.ResolveReference would drop.
func EnsureTrailingSlash(u *url.URL) (*url.URL, error) {
	if len(u.Path) > 0 && u.Path[len(u.Path)-1] == '/' {
		cp := *u
		return &cp, nil
	}

	return url.Parse(u.String() + "/")
}

func describeMirrors(mirrors []*Mirror) map[string][]string {
	out := map[string][]string{}
	for _, m := range mirrors {
		for _, t := range m.Targets {
			out[m.Origin.String()] = append(out[m.Origin.String()], t.URL.String())
		}
	}

	return out
}
