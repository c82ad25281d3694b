package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
default-channels = ["conda-forge"]
tls-no-verify = false
authentication-override-file = "creds.json"
change-ps1 = false

[mirrors]
"https://conda.anaconda.org/conda-forge" = [
  "https://prefix.dev/conda-forge",
  "oci://ghcr.io/channel-mirrors/conda-forge",
]
"https://conda.anaconda.org/bioconda" = ["https://example.com/bioconda"]

[s3-options.my-bucket]
endpoint-url = "https://s3.eu-central-1.amazonaws.com"
region = "eu-central-1"
force-path-style = true

[proxy-config]
https = "http://proxy:8080"
non-proxy-hosts = ["localhost"]

[concurrency]
downloads = 8
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("reads mirrors and s3 options", func(t *testing.T) {
		path := filepath.Join(dir, "config.toml")
		require.NoError(t, os.WriteFile(path, []byte(testConfig), 0644))

		cfg, undecoded, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, []string{"change-ps1"}, undecoded)
		assert.Equal(t, path, cfg.Path())
		assert.Equal(t, filepath.Join(dir, "creds.json"), cfg.AuthenticationOverrideFile)

		mirrors := cfg.MirrorMap()
		require.Len(t, mirrors, 2)

		assert.Equal(t, "https://conda.anaconda.org/bioconda", mirrors[0].Origin.String())
		assert.Equal(t, "https://conda.anaconda.org/conda-forge", mirrors[1].Origin.String())
		require.Len(t, mirrors[1].Targets, 2)
		assert.Equal(t, "oci", mirrors[1].Targets[1].Scheme)

		s3 := cfg.ComputeS3Config()
		assert.Equal(t, S3Options{
			EndpointURL:    "https://s3.eu-central-1.amazonaws.com",
			Region:         "eu-central-1",
			ForcePathStyle: true,
		}, s3["my-bucket"])

		assert.Equal(t, "http://proxy:8080", cfg.Proxy.HTTPS)
		assert.Equal(t, 8, cfg.DownloadConcurrency())
	})

	t.Run("reports parse failures as config errors", func(t *testing.T) {
		path := filepath.Join(dir, "bad.toml")
		require.NoError(t, os.WriteFile(path, []byte("mirrors = [ nope"), 0644))

		_, _, err := Load(path)
		require.Error(t, err)

		var cerr *Error
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, path, cerr.Path)
	})

	t.Run("reports missing files as config errors", func(t *testing.T) {
		_, _, err := Load(filepath.Join(dir, "missing.toml"))

		var cerr *Error
		require.True(t, errors.As(err, &cerr))
		assert.True(t, os.IsNotExist(cerr.Err))
	})

	t.Run("defaults download concurrency", func(t *testing.T) {
		cfg, _, err := Parse("")
		require.NoError(t, err)

		assert.Equal(t, DefaultDownloadConcurrency, cfg.DownloadConcurrency())
		assert.Empty(t, cfg.MirrorMap())

		var nilCfg *Config
		assert.Equal(t, DefaultDownloadConcurrency, nilCfg.DownloadConcurrency())
	})
}

func TestPlatform(t *testing.T) {
	t.Run("parses known platforms", func(t *testing.T) {
		p, err := ParsePlatform("linux-64")
		require.NoError(t, err)
		assert.Equal(t, Linux64, p)
		assert.True(t, p.IsUnix())
		assert.False(t, p.IsWindows())

		p, err = ParsePlatform("WIN-64")
		require.NoError(t, err)
		assert.True(t, p.IsWindows())

		_, err = ParsePlatform("amiga-68k")
		assert.Error(t, err)
	})

	t.Run("maps host os and arch", func(t *testing.T) {
		assert.Equal(t, Linux64, platformFor("linux", "x86_64"))
		assert.Equal(t, LinuxAarch64, platformFor("linux", "aarch64"))
		assert.Equal(t, LinuxPpc64le, platformFor("linux", "ppc64le"))
		assert.Equal(t, OsxArm64, platformFor("darwin", "arm64"))
		assert.Equal(t, Osx64, platformFor("darwin", "x86_64"))
		assert.Equal(t, Win64, platformFor("windows", "amd64"))
		assert.Equal(t, WinArm64, platformFor("windows", "arm64"))
	})

	t.Run("current platform is known", func(t *testing.T) {
		_, err := ParsePlatform(Current().String())
		assert.NoError(t, err)
	})
}
