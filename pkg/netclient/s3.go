package netclient

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/go-hclog"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/auth"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
	"github.com/pkg/errors"
)

const defaultS3Region = "us-east-1"

// s3Backend turns s3://bucket/key requests into presigned HTTPS requests
// sent through the next layer. Presigning is local; no request is made to
// AWS until the presigned URL is fetched.
type s3Backend struct {
	next    http.RoundTripper
	options map[string]config.S3Options
	storage *auth.Storage
	L       hclog.Logger

	mu      sync.Mutex
	clients map[string]*s3.PresignClient
}

func newS3Backend(next http.RoundTripper, options map[string]config.S3Options, storage *auth.Storage, L hclog.Logger) *s3Backend {
	return &s3Backend{
		next:    next,
		options: options,
		storage: storage,
		L:       L,
		clients: map[string]*s3.PresignClient{},
	}
}

func (b *s3Backend) presignClient(ctx context.Context, bucket string) (*s3.PresignClient, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pc, ok := b.clients[bucket]; ok {
		return pc, nil
	}

	opts, configured := b.options[bucket]

	var cfg aws.Config

	a, ok := b.storage.Get("s3://" + bucket)
	if creds, isS3 := a.(auth.S3Credentials); ok && isS3 {
		cfg = aws.Config{
			Credentials: credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		}
	} else {
		var err error

		cfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "loading AWS configuration for bucket %s", bucket)
		}
	}

	if configured && opts.Region != "" {
		cfg.Region = opts.Region
	}

	if cfg.Region == "" {
		cfg.Region = defaultS3Region
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if configured {
			if opts.EndpointURL != "" {
				o.BaseEndpoint = aws.String(opts.EndpointURL)
			}
			o.UsePathStyle = opts.ForcePathStyle
		}
	})

	b.L.Debug("created S3 presigner", "bucket", bucket, "region", cfg.Region, "endpoint", opts.EndpointURL)

	pc := s3.NewPresignClient(client)
	b.clients[bucket] = pc

	return pc, nil
}

func (b *s3Backend) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	bucket, key := bucketAndKey(req)

	pc, err := b.presignClient(ctx, bucket)
	if err != nil {
		return nil, err
	}

	var (
		signedURL string
		signed    http.Header
	)

	switch req.Method {
	case http.MethodHead:
		ps, err := pc.PresignHeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, errors.Wrapf(err, "presigning %s", req.URL)
		}

		signedURL, signed = ps.URL, ps.SignedHeader
	case http.MethodGet:
		ps, err := pc.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, errors.Wrapf(err, "presigning %s", req.URL)
		}

		signedURL, signed = ps.URL, ps.SignedHeader
	default:
		return syntheticResponse(req, http.StatusMethodNotAllowed, nil, 0), nil
	}

	u, err := url.Parse(signedURL)
	if err != nil {
		return nil, errors.Wrapf(err, "presigned url for %s", req.URL)
	}

	out := req.Clone(ctx)
	out.URL = u
	out.Host = ""

	for k, vs := range signed {
		if http.CanonicalHeaderKey(k) == "Host" {
			continue
		}

		for _, v := range vs {
			out.Header.Add(k, v)
		}
	}

	return b.next.RoundTrip(out)
}
