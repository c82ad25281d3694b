package cleanhttp

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// MaxIdleConnsPerHost bounds the idle pool kept for each package host.
	MaxIdleConnsPerHost = 20

	// RequestTimeout applies to every individual request.
	RequestTimeout = 5 * time.Minute
)

type Options struct {
	UserAgent   string
	TLSNoVerify bool

	// Proxies by scheme. Empty values fall back to the environment.
	HTTPSProxy    string
	HTTPProxy     string
	NonProxyHosts []string
}

// Transport builds the base transport. Compression is disabled since
// package archives are already compressed.
func Transport(opts Options) (*http.Transport, error) {
	proxy, err := proxyFunc(opts)
	if err != nil {
		return nil, err
	}

	tr := &http.Transport{
		Proxy: proxy,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}

	if opts.TLSNoVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return tr, nil
}

// Client wraps rt in a client with the request timeout, setting the user
// agent on requests that do not have one.
func Client(rt http.RoundTripper, userAgent string) *http.Client {
	if userAgent != "" {
		rt = &uaTransport{next: rt, ua: userAgent}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   RequestTimeout,
	}
}

type uaTransport struct {
	next http.RoundTripper
	ua   string
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}

	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.ua)

	return t.next.RoundTrip(req)
}

func proxyFunc(opts Options) (func(*http.Request) (*url.URL, error), error) {
	if opts.HTTPSProxy == "" && opts.HTTPProxy == "" {
		return http.ProxyFromEnvironment, nil
	}

	parse := func(s string) (*url.URL, error) {
		if s == "" {
			return nil, nil
		}

		u, err := url.Parse(s)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid proxy url %q", s)
		}

		if u.Scheme == "" || u.Host == "" {
			return nil, errors.Errorf("invalid proxy url %q", s)
		}

		return u, nil
	}

	httpsProxy, err := parse(opts.HTTPSProxy)
	if err != nil {
		return nil, err
	}

	httpProxy, err := parse(opts.HTTPProxy)
	if err != nil {
		return nil, err
	}

	skip := opts.NonProxyHosts

	return func(req *http.Request) (*url.URL, error) {
		host := req.URL.Hostname()
		for _, h := range skip {
			h = strings.TrimPrefix(h, "*")
			if host == h || strings.HasPrefix(h, ".") && strings.HasSuffix(host, h) {
				return nil, nil
			}
		}

		if req.URL.Scheme == "https" {
			return httpsProxy, nil
		}

		return httpProxy, nil
	}, nil
}
