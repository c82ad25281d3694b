package netclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/auth"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
)

// objectStoreTransport serves s3://, gcs:// and oci:// URLs. Requests for
// any other scheme pass through untouched.
type objectStoreTransport struct {
	next http.RoundTripper
	L    hclog.Logger

	s3  *s3Backend
	gcs *gcsBackend
	oci *ociBackend
}

func newObjectStoreTransport(next http.RoundTripper, s3Config map[string]config.S3Options, storage *auth.Storage, L hclog.Logger) *objectStoreTransport {
	return &objectStoreTransport{
		next: next,
		L:    L,
		s3:   newS3Backend(next, s3Config, storage, L),
		gcs:  &gcsBackend{L: L},
		oci:  &ociBackend{next: next, storage: storage, L: L},
	}
}

func (o *objectStoreTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	switch req.URL.Scheme {
	case "s3":
		return o.s3.RoundTrip(req)
	case "gcs":
		return o.gcs.RoundTrip(req)
	case "oci":
		return o.oci.RoundTrip(req)
	default:
		return o.next.RoundTrip(req)
	}
}

func bucketAndKey(req *http.Request) (string, string) {
	return req.URL.Host, strings.TrimPrefix(req.URL.Path, "/")
}

// syntheticResponse builds a response for backends that do not speak HTTP
// to the caller directly.
func syntheticResponse(req *http.Request, status int, body io.ReadCloser, size int64) *http.Response {
	if body == nil {
		body = io.NopCloser(bytes.NewReader(nil))
		if req.Method != http.MethodHead {
			size = 0
		}
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{},
		Body:          body,
		ContentLength: size,
		Request:       req,
	}
}
