package netclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/static"
	"github.com/hashicorp/go-hclog"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/auth"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder answers every request with the status chosen by status and
// remembers the URLs it saw.
type recorder struct {
	mu     sync.Mutex
	seen   []string
	status func(u *url.URL) int
	header []http.Header
}

func (r *recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	r.mu.Lock()
	r.seen = append(r.seen, req.URL.String())
	r.header = append(r.header, req.Header.Clone())
	r.mu.Unlock()

	status := http.StatusOK
	if r.status != nil {
		status = r.status(req.URL)
	}

	return syntheticResponse(req, status, io.NopCloser(strings.NewReader(req.URL.String())), -1), nil
}

func mustURL(t *testing.T, s string) *url.URL {
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u
}

func isolateAuth(t *testing.T) {
	t.Setenv(auth.EnvAuthFile, filepath.Join(t.TempDir(), "credentials.json"))
}

func TestEnsureTrailingSlash(t *testing.T) {
	t.Run("appends a slash", func(t *testing.T) {
		u, err := EnsureTrailingSlash(mustURL(t, "https://host/prefix"))
		require.NoError(t, err)
		assert.Equal(t, "https://host/prefix/", u.String())

		u, err = EnsureTrailingSlash(mustURL(t, "https://host"))
		require.NoError(t, err)
		assert.Equal(t, "https://host/", u.String())
	})

	t.Run("is idempotent", func(t *testing.T) {
		in := mustURL(t, "https://host/a/b/")

		once, err := EnsureTrailingSlash(in)
		require.NoError(t, err)

		twice, err := EnsureTrailingSlash(once)
		require.NoError(t, err)

		assert.Equal(t, in.String(), once.String())
		assert.Equal(t, once.String(), twice.String())
	})

	t.Run("keeps the last segment when resolving below it", func(t *testing.T) {
		base := mustURL(t, "https://host/prefix")

		naive := base.ResolveReference(mustURL(t, "sibling"))
		assert.Equal(t, "https://host/sibling", naive.String())

		fixed, err := EnsureTrailingSlash(base)
		require.NoError(t, err)

		assert.Equal(t, "https://host/prefix/sibling", fixed.ResolveReference(mustURL(t, "sibling")).String())
	})
}

func TestMirror(t *testing.T) {
	L := hclog.NewNullLogger()

	origin := mustURL(t, "https://conda.anaconda.org/conda-forge/")

	t.Run("rewrites to the first mirror", func(t *testing.T) {
		rec := &recorder{}
		rt := newMirrorTransport(rec, []*Mirror{{
			Origin:  origin,
			Targets: []MirrorTarget{{URL: mustURL(t, "https://mirror.example.com/cf/")}},
		}}, L)

		req := httptest.NewRequest("GET", "https://conda.anaconda.org/conda-forge/linux-64/repodata.json", nil)
		resp, err := rt.RoundTrip(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, []string{"https://mirror.example.com/cf/linux-64/repodata.json"}, rec.seen)
	})

	t.Run("falls back on server errors and not found", func(t *testing.T) {
		rec := &recorder{status: func(u *url.URL) int {
			switch u.Host {
			case "a.example.com":
				return http.StatusBadGateway
			case "b.example.com":
				return http.StatusNotFound
			default:
				return http.StatusOK
			}
		}}

		rt := newMirrorTransport(rec, []*Mirror{{
			Origin: origin,
			Targets: []MirrorTarget{
				{URL: mustURL(t, "https://a.example.com/")},
				{URL: mustURL(t, "https://b.example.com/")},
				{URL: mustURL(t, "https://c.example.com/")},
			},
		}}, L)

		req := httptest.NewRequest("GET", "https://conda.anaconda.org/conda-forge/noarch/x-1-0.conda", nil)
		resp, err := rt.RoundTrip(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []string{
			"https://a.example.com/noarch/x-1-0.conda",
			"https://b.example.com/noarch/x-1-0.conda",
			"https://c.example.com/noarch/x-1-0.conda",
		}, rec.seen)
	})

	t.Run("returns the last failure", func(t *testing.T) {
		rec := &recorder{status: func(*url.URL) int { return http.StatusServiceUnavailable }}

		rt := newMirrorTransport(rec, []*Mirror{{
			Origin: origin,
			Targets: []MirrorTarget{
				{URL: mustURL(t, "https://a.example.com/")},
				{URL: mustURL(t, "https://b.example.com/")},
			},
		}}, L)

		req := httptest.NewRequest("GET", "https://conda.anaconda.org/conda-forge/noarch/x-1-0.conda", nil)
		resp, err := rt.RoundTrip(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Len(t, rec.seen, 2)
	})

	t.Run("skips mirrors that do not serve a file kind", func(t *testing.T) {
		rec := &recorder{}

		rt := newMirrorTransport(rec, []*Mirror{{
			Origin: origin,
			Targets: []MirrorTarget{
				{URL: mustURL(t, "https://a.example.com/"), NoZstd: true, NoJlap: true},
				{URL: mustURL(t, "https://b.example.com/")},
			},
		}}, L)

		for _, file := range []string{"repodata.json.zst", "repodata.jlap"} {
			req := httptest.NewRequest("GET", "https://conda.anaconda.org/conda-forge/linux-64/"+file, nil)
			resp, err := rt.RoundTrip(req)
			require.NoError(t, err)
			resp.Body.Close()
		}

		req := httptest.NewRequest("GET", "https://conda.anaconda.org/conda-forge/linux-64/repodata.json", nil)
		resp, err := rt.RoundTrip(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, []string{
			"https://b.example.com/linux-64/repodata.json.zst",
			"https://b.example.com/linux-64/repodata.jlap",
			"https://a.example.com/linux-64/repodata.json",
		}, rec.seen)
	})

	t.Run("prefers the longest origin and passes others through", func(t *testing.T) {
		rec := &recorder{}

		rt := newMirrorTransport(rec, []*Mirror{
			{
				Origin:  mustURL(t, "https://conda.anaconda.org/"),
				Targets: []MirrorTarget{{URL: mustURL(t, "https://all.example.com/")}},
			},
			{
				Origin:  origin,
				Targets: []MirrorTarget{{URL: mustURL(t, "https://cf.example.com/")}},
			},
		}, L)

		for _, u := range []string{
			"https://conda.anaconda.org/conda-forge/noarch/a-1-0.conda",
			"https://conda.anaconda.org/bioconda/noarch/b-1-0.conda",
			"https://repo.prefix.dev/other/noarch/c-1-0.conda",
		} {
			resp, err := rt.RoundTrip(httptest.NewRequest("GET", u, nil))
			require.NoError(t, err)
			resp.Body.Close()
		}

		assert.Equal(t, []string{
			"https://cf.example.com/noarch/a-1-0.conda",
			"https://all.example.com/bioconda/noarch/b-1-0.conda",
			"https://repo.prefix.dev/other/noarch/c-1-0.conda",
		}, rec.seen)
	})

	t.Run("does not replay requests with a body", func(t *testing.T) {
		rec := &recorder{status: func(*url.URL) int { return http.StatusInternalServerError }}

		rt := newMirrorTransport(rec, []*Mirror{{
			Origin: origin,
			Targets: []MirrorTarget{
				{URL: mustURL(t, "https://a.example.com/")},
				{URL: mustURL(t, "https://b.example.com/")},
			},
		}}, L)

		req := httptest.NewRequest("POST", "https://conda.anaconda.org/conda-forge/upload", bytes.NewReader([]byte("x")))
		resp, err := rt.RoundTrip(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, []string{"https://a.example.com/upload"}, rec.seen)
	})

	t.Run("normalizes configured mirrors", func(t *testing.T) {
		mirrors, err := MirrorsFromConfig([]config.Mirror{{
			Origin:  mustURL(t, "https://conda.anaconda.org/conda-forge"),
			Targets: []*url.URL{mustURL(t, "https://prefix.dev/conda-forge"), mustURL(t, "oci://ghcr.io/channel-mirrors/conda-forge/")},
		}})
		require.NoError(t, err)
		require.Len(t, mirrors, 1)

		assert.Equal(t, "https://conda.anaconda.org/conda-forge/", mirrors[0].Origin.String())
		assert.Equal(t, "https://prefix.dev/conda-forge/", mirrors[0].Targets[0].URL.String())
		assert.Equal(t, "oci://ghcr.io/channel-mirrors/conda-forge/", mirrors[0].Targets[1].URL.String())
	})
}

func TestAuthLayer(t *testing.T) {
	storage := auth.NewStorage(auth.MemoryBackend{
		"bearer.example.com": auth.BearerToken("tok"),
		"basic.example.com":  auth.BasicHTTP{Username: "u", Password: "p"},
		"conda.example.com":  auth.CondaToken("ct-1"),
	})

	rec := &recorder{}
	rt := &authTransport{next: rec, storage: storage, L: hclog.NewNullLogger()}

	do := func(u string, hdr string) {
		req := httptest.NewRequest("GET", u, nil)
		if hdr != "" {
			req.Header.Set("Authorization", hdr)
		}

		resp, err := rt.RoundTrip(req)
		require.NoError(t, err)
		resp.Body.Close()
	}

	do("https://bearer.example.com/a", "")
	do("https://basic.example.com/b", "")
	do("https://conda.example.com/channel/noarch/c.conda", "")
	do("https://conda.example.com/t/already/channel/noarch/c.conda", "")
	do("https://bearer.example.com/d", "Bearer mine")
	do("https://nobody.example.com/e", "")

	require.Len(t, rec.seen, 6)

	assert.Equal(t, "Bearer tok", rec.header[0].Get("Authorization"))

	r := &http.Request{Header: rec.header[1]}
	user, pass, ok := r.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)

	assert.Equal(t, "https://conda.example.com/t/ct-1/channel/noarch/c.conda", rec.seen[2])
	assert.Equal(t, "https://conda.example.com/t/already/channel/noarch/c.conda", rec.seen[3])
	assert.Equal(t, "Bearer mine", rec.header[4].Get("Authorization"))
	assert.Empty(t, rec.header[5].Get("Authorization"))
}

func TestBuild(t *testing.T) {
	t.Run("builds without a config", func(t *testing.T) {
		isolateAuth(t)

		var ua string

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua = r.Header.Get("User-Agent")
			w.Write([]byte("ok"))
		}))
		defer srv.Close()

		c, err := Build(nil, nil)
		require.NoError(t, err)

		resp, err := c.HTTPClient().Get(srv.URL + "/pkg.conda")
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, "pixi-install-to-prefix/"+Version, ua)
		assert.Equal(t, 5*60, int(c.HTTPClient().Timeout.Seconds()))
	})

	t.Run("fails on malformed auth storage", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth.json")
		require.NoError(t, os.WriteFile(path, []byte("{nope"), 0600))

		t.Setenv(auth.EnvAuthFile, path)

		_, err := Build(nil, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrAuthStorageInit))

		var be *BuildError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, ErrAuthStorageInit, be.Kind)
	})

	t.Run("fails on an invalid proxy", func(t *testing.T) {
		isolateAuth(t)

		cfg, _, err := config.Parse(`
[proxy-config]
https = "::not a url"
`)
		require.NoError(t, err)

		_, err = Build(cfg, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTransportInit))
	})

	t.Run("routes through configured mirrors", func(t *testing.T) {
		isolateAuth(t)

		broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer broken.Close()

		var path string

		good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			w.Write([]byte("repodata"))
		}))
		defer good.Close()

		cfg, _, err := config.Parse(fmt.Sprintf(`
[mirrors]
"https://conda.anaconda.org/conda-forge" = ["%s/broken", "%s/mirror/conda-forge"]
`, broken.URL, good.URL))
		require.NoError(t, err)

		c, err := Build(cfg, hclog.NewNullLogger())
		require.NoError(t, err)

		resp, err := c.HTTPClient().Get("https://conda.anaconda.org/conda-forge/linux-64/repodata.json")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Equal(t, "repodata", string(body))
		assert.Equal(t, "/mirror/conda-forge/linux-64/repodata.json", path)
	})

	t.Run("presigns s3 requests", func(t *testing.T) {
		authPath := filepath.Join(t.TempDir(), "auth.json")
		require.NoError(t, os.WriteFile(authPath, []byte(`{
  "s3://my-bucket": {"S3Credentials": {"access_key_id": "AKIDEXAMPLE", "secret_access_key": "secret"}}
}`), 0600))

		t.Setenv(auth.EnvAuthFile, authPath)

		var got *url.URL

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.URL
			w.Write([]byte("archive"))
		}))
		defer srv.Close()

		cfg, _, err := config.Parse(fmt.Sprintf(`
[s3-options.my-bucket]
endpoint-url = "%s"
region = "eu-central-1"
force-path-style = true
`, srv.URL))
		require.NoError(t, err)

		c, err := Build(cfg, nil)
		require.NoError(t, err)

		resp, err := c.HTTPClient().Get("s3://my-bucket/channel/noarch/pkg-1.0-0.conda")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "archive", string(body))

		require.NotNil(t, got)
		assert.Equal(t, "/my-bucket/channel/noarch/pkg-1.0-0.conda", got.Path)
		assert.NotEmpty(t, got.Query().Get("X-Amz-Signature"))
		assert.True(t, strings.HasPrefix(got.Query().Get("X-Amz-Credential"), "AKIDEXAMPLE/"))
		assert.Contains(t, got.Query().Get("X-Amz-Credential"), "eu-central-1")
	})

	t.Run("pulls packages from an oci registry", func(t *testing.T) {
		isolateAuth(t)

		reg := httptest.NewServer(registry.New())
		defer reg.Close()

		host := strings.TrimPrefix(reg.URL, "http://")
		content := []byte("conda archive bytes")

		img, err := mutate.AppendLayers(empty.Image, static.NewLayer(content, MediaTypeConda))
		require.NoError(t, err)

		ref, err := name.ParseReference(host + "/conda-forge/linux-64/zzz_libgcc_mutex:0.1-conda_forge")
		require.NoError(t, err)
		require.NoError(t, remote.Write(ref, img))

		c, err := Build(nil, nil)
		require.NoError(t, err)

		resp, err := c.HTTPClient().Get("oci://" + host + "/conda-forge/linux-64/_libgcc_mutex-0.1-conda_forge.conda")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, content, body)

		missing, err := c.HTTPClient().Get("oci://" + host + "/conda-forge/linux-64/other-1.0-0.conda")
		require.NoError(t, err)
		missing.Body.Close()

		assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	})
}

func TestOCIReference(t *testing.T) {
	ref, mt, err := OCIReference("ghcr.io", "/channel-mirrors/conda-forge/linux-64/_openmp_mutex-4.5-2_gnu.tar.bz2")
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io/channel-mirrors/conda-forge/linux-64/zzz_openmp_mutex:4.5-2_gnu", ref)
	assert.Equal(t, MediaTypeTarBz2, mt)

	ref, mt, err = OCIReference("ghcr.io", "/cf/noarch/pkg-1.0+local!1=2-py_0.conda")
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io/cf/noarch/pkg:1.0__p__local__e__1__eq__2-py_0", ref)
	assert.Equal(t, MediaTypeConda, mt)

	_, _, err = OCIReference("ghcr.io", "/cf/noarch/repodata.json")
	assert.True(t, errors.Is(err, ErrNotOCIPackage))
}
