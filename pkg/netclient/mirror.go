package netclient

import (
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
	"github.com/pkg/errors"
)

// MirrorTarget is one location an origin is mirrored to. The No* flags
// mark file kinds the mirror does not serve.
type MirrorTarget struct {
	URL *url.URL

	NoJlap bool
	NoBz2  bool
	NoZstd bool
}

// Mirror redirects every request below Origin to its Targets, tried in
// order.
type Mirror struct {
	Origin  *url.URL
	Targets []MirrorTarget
}

// MirrorsFromConfig normalizes the configured mirror map so that every
// origin and target ends in a slash.
func MirrorsFromConfig(in []config.Mirror) ([]*Mirror, error) {
	var out []*Mirror

	for _, cm := range in {
		origin, err := EnsureTrailingSlash(cm.Origin)
		if err != nil {
			return nil, errors.Wrapf(err, "mirror origin %s", cm.Origin)
		}

		m := &Mirror{Origin: origin}

		for _, t := range cm.Targets {
			tu, err := EnsureTrailingSlash(t)
			if err != nil {
				return nil, errors.Wrapf(err, "mirror %s", t)
			}

			m.Targets = append(m.Targets, MirrorTarget{URL: tu})
		}

		out = append(out, m)
	}

	return out, nil
}

func (t MirrorTarget) serves(path string) bool {
	switch {
	case t.NoJlap && strings.HasSuffix(path, ".jlap"):
		return false
	case t.NoBz2 && strings.HasSuffix(path, ".json.bz2"):
		return false
	case t.NoZstd && strings.HasSuffix(path, ".json.zst"):
		return false
	default:
		return true
	}
}

type mirrorTransport struct {
	next    http.RoundTripper
	mirrors []*Mirror
	L       hclog.Logger
}

func newMirrorTransport(next http.RoundTripper, mirrors []*Mirror, L hclog.Logger) http.RoundTripper {
	if len(mirrors) == 0 {
		return next
	}

	sorted := make([]*Mirror, len(mirrors))
	copy(sorted, mirrors)

	// Longest origin first so the most specific mirror wins.
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Origin.String()) > len(sorted[j].Origin.String())
	})

	return &mirrorTransport{next: next, mirrors: sorted, L: L}
}

func (m *mirrorTransport) match(u string) (*Mirror, string) {
	for _, mir := range m.mirrors {
		origin := mir.Origin.String()
		if strings.HasPrefix(u, origin) {
			return mir, strings.TrimPrefix(u, origin)
		}
	}

	return nil, ""
}

func (m *mirrorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	mir, rest := m.match(req.URL.String())
	if mir == nil {
		return m.next.RoundTrip(req)
	}

	var targets []MirrorTarget
	for _, t := range mir.Targets {
		if t.serves(req.URL.Path) {
			targets = append(targets, t)
		}
	}

	if len(targets) == 0 {
		return m.next.RoundTrip(req)
	}

	// Only requests without a body can be replayed against another mirror.
	if req.Body != nil && req.Body != http.NoBody {
		targets = targets[:1]
	}

	var (
		resp *http.Response
		err  error
	)

	for i, t := range targets {
		target, perr := url.Parse(t.URL.String() + rest)
		if perr != nil {
			return nil, errors.Wrapf(perr, "rewriting %s for mirror %s", req.URL, t.URL)
		}

		m.L.Debug("redirecting request to mirror", "url", req.URL.String(), "mirror", target.String())

		mreq := req.Clone(req.Context())
		mreq.URL = target
		mreq.Host = ""

		resp, err = m.next.RoundTrip(mreq)

		if i == len(targets)-1 || !retryable(resp, err) {
			break
		}

		if err != nil {
			m.L.Warn("mirror failed, trying next", "mirror", t.URL.String(), "error", err)
		} else {
			m.L.Warn("mirror failed, trying next", "mirror", t.URL.String(), "status", resp.StatusCode)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	return resp, err
}

func retryable(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}

	return resp.StatusCode >= 500 || resp.StatusCode == http.StatusNotFound
}
