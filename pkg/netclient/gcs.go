package netclient

import (
	"context"
	"net/http"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
)

// gcsBackend reads gcs://bucket/object from Google Cloud Storage using the
// application default credentials. The storage client is created on first
// use.
type gcsBackend struct {
	L    hclog.Logger
	opts []option.ClientOption

	once   sync.Once
	client *storage.Client
	err    error
}

func (g *gcsBackend) storageClient() (*storage.Client, error) {
	g.once.Do(func() {
		opts := append([]option.ClientOption{option.WithUserAgent(UserAgent())}, g.opts...)

		g.client, g.err = storage.NewClient(context.Background(), opts...)
		if g.err != nil {
			g.err = errors.Wrapf(g.err, "creating Google Cloud Storage client")
		}
	})

	return g.client, g.err
}

func (g *gcsBackend) RoundTrip(req *http.Request) (*http.Response, error) {
	client, err := g.storageClient()
	if err != nil {
		return nil, err
	}

	ctx := req.Context()
	bucket, key := bucketAndKey(req)
	obj := client.Bucket(bucket).Object(key)

	g.L.Trace("reading from GCS", "bucket", bucket, "object", key)

	switch req.Method {
	case http.MethodHead:
		attrs, err := obj.Attrs(ctx)
		if err != nil {
			return gcsError(req, err)
		}

		return syntheticResponse(req, http.StatusOK, nil, attrs.Size), nil
	case http.MethodGet:
		r, err := obj.NewReader(ctx)
		if err != nil {
			return gcsError(req, err)
		}

		return syntheticResponse(req, http.StatusOK, r, r.Attrs.Size), nil
	default:
		return syntheticResponse(req, http.StatusMethodNotAllowed, nil, 0), nil
	}
}

func gcsError(req *http.Request, err error) (*http.Response, error) {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return syntheticResponse(req, http.StatusNotFound, nil, 0), nil
	}

	return nil, errors.Wrapf(err, "reading %s", req.URL)
}
