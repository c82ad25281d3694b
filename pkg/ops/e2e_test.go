package ops

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/netclient"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/pixilock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloArchive = "../engine/testdata/hello-1.0-h0_0.tar.bz2"

const e2eLock = `version: 6
environments:
  default:
    channels:
    - url: %[1]s/conda-forge/
    packages:
      linux-64:
      - conda: %[2]s
packages:
- conda: %[2]s
  sha256: %[3]s
  size: %[4]d
`

func TestInstallToPrefix(t *testing.T) {
	archive, err := os.ReadFile(helloArchive)
	require.NoError(t, err)

	sum := sha256.Sum256(archive)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conda-forge/linux-64/hello-1.0-h0_0.tar.bz2" {
			http.NotFound(w, r)
			return
		}

		http.ServeContent(w, r, "hello-1.0-h0_0.tar.bz2", time.Time{}, strings.NewReader(string(archive)))
	}))
	defer srv.Close()

	t.Setenv("RATTLER_AUTH_FILE", filepath.Join(t.TempDir(), "none.json"))

	client, err := netclient.Build(nil, nil)
	require.NoError(t, err)

	L := hclog.NewNullLogger()

	t.Run("installs a url package", func(t *testing.T) {
		lock := fmt.Sprintf(e2eLock, srv.URL, srv.URL+"/conda-forge/linux-64/hello-1.0-h0_0.tar.bz2", hex.EncodeToString(sum[:]), len(archive))

		lf, err := pixilock.Parse(strings.NewReader(lock))
		require.NoError(t, err)

		var lr LockResolve
		lr.SetLogger(L)

		records, err := lr.Resolve(lf, "default", config.Linux64)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "hello", records[0].Name)

		prefix := filepath.Join(t.TempDir(), "env")

		pi := PrefixInstall{CacheDir: t.TempDir(), Out: &strings.Builder{}}
		pi.SetLogger(L)

		summary, err := pi.Install(context.Background(), prefix, config.Linux64, records, client)
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Operations)
		assert.FileExists(t, filepath.Join(prefix, "conda-meta", HistoryFile))
		assert.FileExists(t, filepath.Join(prefix, "conda-meta", "hello-1.0-h0_0.json"))

		b, err := os.ReadFile(filepath.Join(prefix, "bin", "hello"))
		require.NoError(t, err)
		assert.Contains(t, string(b), "echo hello from "+prefix)

		var aw ActivationWrite
		aw.SetLogger(L)

		require.NoError(t, aw.Generate(prefix, DefaultShells(config.Linux64), config.Linux64))
		assert.FileExists(t, filepath.Join(ActivationDir(prefix), "activate.sh"))
		assert.FileExists(t, filepath.Join(ActivationDir(prefix), "activate.fish"))

		summary, err = pi.Install(context.Background(), prefix, config.Linux64, records, client)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Operations)
	})
}
