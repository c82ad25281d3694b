package netclient

import (
	"net/http"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/auth"
)

type authTransport struct {
	next    http.RoundTripper
	storage *auth.Storage
	L       hclog.Logger
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		return t.next.RoundTrip(req)
	}

	a, ok := t.storage.GetURL(req.URL)
	if !ok {
		return t.next.RoundTrip(req)
	}

	req = req.Clone(req.Context())

	switch a := a.(type) {
	case auth.BearerToken:
		req.Header.Set("Authorization", "Bearer "+string(a))
	case auth.BasicHTTP:
		req.SetBasicAuth(a.Username, a.Password)
	case auth.CondaToken:
		insertCondaToken(req, string(a))
	case auth.S3Credentials:
		// Consumed by the object storage layer.
	}

	t.L.Trace("attached credentials", "host", req.URL.Host)

	return t.next.RoundTrip(req)
}

// insertCondaToken rewrites /path to /t/<token>/path unless the path
// already carries a token.
func insertCondaToken(req *http.Request, token string) {
	if strings.HasPrefix(req.URL.Path, "/t/") {
		return
	}

	u := *req.URL
	u.Path = "/t/" + token + "/" + strings.TrimPrefix(u.Path, "/")
	u.RawPath = ""

	req.URL = &u
}
