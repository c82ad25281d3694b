package ops

import (
	"strings"
	"testing"

	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/pixilock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resolveLock = `version: 6
environments:
  default:
    channels:
    - url: https://conda.anaconda.org/conda-forge/
    packages:
      linux-64:
      - conda: https://conda.anaconda.org/conda-forge/linux-64/zlib-1.3.1-hb9d3cd8_2.conda
      - conda: https://conda.anaconda.org/conda-forge/noarch/tzdata-2024b-hc8b5060_0.conda
      - conda: https://conda.anaconda.org/conda-forge/linux-64/_libgcc_mutex-0.1-conda_forge.tar.bz2
      win-64: []
  paths:
    channels:
    - url: https://conda.anaconda.org/conda-forge/
    packages:
      linux-64:
      - conda: https://conda.anaconda.org/conda-forge/linux-64/zlib-1.3.1-hb9d3cd8_2.conda
      - conda: ./packages/foo-1.0-h0_0.tar.bz2
  source:
    channels:
    - url: https://conda.anaconda.org/conda-forge/
    packages:
      linux-64:
      - conda: ./recipes/mylib
  pypi:
    channels:
    - url: https://conda.anaconda.org/conda-forge/
    packages:
      linux-64:
      - conda: https://conda.anaconda.org/conda-forge/linux-64/zlib-1.3.1-hb9d3cd8_2.conda
      - pypi: https://files.pythonhosted.org/packages/rich-13.9.4-py3-none-any.whl
packages:
- conda: https://conda.anaconda.org/conda-forge/linux-64/zlib-1.3.1-hb9d3cd8_2.conda
  sha256: 5d7c0e5f0005f74112a34a7425179f4eb6e73c92f5d109e6af4ddeca407c92ab
  md5: c9f075ab2f33b3bbee9e62d4ad0a6cd8
  depends:
  - __glibc >=2.17,<3.0.a0
  - libzlib 1.3.1 hb9d3cd8_2
  size: 92286
- conda: https://conda.anaconda.org/conda-forge/noarch/tzdata-2024b-hc8b5060_0.conda
  sha256: 4fde5c3008bf5d2db82f2b50204464314cc3c91c1d953652f7bd01d9e52aefdf
  size: 122354
- conda: https://conda.anaconda.org/conda-forge/linux-64/_libgcc_mutex-0.1-conda_forge.tar.bz2
  sha256: fe51de6107f9edc7aaebfc4b3a95a6a8e4e72f9e54dd8d1e5c1d0d2823c9bc0d
  size: 2562
- conda: ./packages/foo-1.0-h0_0.tar.bz2
  sha256: 0000000000000000000000000000000000000000000000000000000000000000
- conda: ./recipes/mylib
  name: mylib
  version: 0.1.0
- pypi: https://files.pythonhosted.org/packages/rich-13.9.4-py3-none-any.whl
  name: rich
  version: 13.9.4
`

func loadResolveLock(t *testing.T) *pixilock.LockFile {
	t.Helper()

	lf, err := pixilock.Parse(strings.NewReader(resolveLock))
	require.NoError(t, err)

	return lf
}

func TestLockResolve(t *testing.T) {
	lf := loadResolveLock(t)

	var r LockResolve

	t.Run("returns records in lockfile order", func(t *testing.T) {
		records, err := r.Resolve(lf, "default", config.Linux64)
		require.NoError(t, err)
		require.Len(t, records, 3)

		assert.Equal(t, "zlib", records[0].Name)
		assert.Equal(t, "1.3.1", records[0].Version)
		assert.Equal(t, "hb9d3cd8_2", records[0].Build)
		assert.Equal(t, uint64(2), records[0].BuildNumber)
		assert.Equal(t, "linux-64", records[0].Subdir)
		assert.Equal(t, "zlib-1.3.1-hb9d3cd8_2.conda", records[0].FileName)
		assert.Equal(t, "https://conda.anaconda.org/conda-forge/linux-64/zlib-1.3.1-hb9d3cd8_2.conda", records[0].URL)
		assert.Equal(t, "https://conda.anaconda.org/conda-forge/", records[0].Channel)
		assert.Equal(t, "5d7c0e5f0005f74112a34a7425179f4eb6e73c92f5d109e6af4ddeca407c92ab", records[0].SHA256)

		assert.Equal(t, "tzdata", records[1].Name)
		assert.Equal(t, "noarch", records[1].Subdir)
		assert.Equal(t, "_libgcc_mutex", records[2].Name)
	})

	t.Run("is deterministic", func(t *testing.T) {
		first, err := r.Resolve(lf, "default", config.Linux64)
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			again, err := r.Resolve(loadResolveLock(t), "default", config.Linux64)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})

	t.Run("unknown environment", func(t *testing.T) {
		records, err := r.Resolve(lf, "prod", config.Linux64)
		require.Error(t, err)
		assert.Nil(t, records)

		assert.True(t, errors.Is(err, ErrUnknownEnvironment))

		var re *ResolveError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, "prod", re.Environment)
		assert.Contains(t, err.Error(), `"prod"`)
	})

	t.Run("platform missing or empty", func(t *testing.T) {
		for _, platform := range []config.Platform{config.OsxArm64, config.Win64} {
			records, err := r.Resolve(lf, "default", platform)
			assert.Nil(t, records)
			assert.True(t, errors.Is(err, ErrUnsupportedPlatform), platform)
			assert.Contains(t, err.Error(), string(platform))
		}
	})

	t.Run("unsupported package kinds fail the whole environment", func(t *testing.T) {
		cases := []struct {
			env, kind, location string
		}{
			{"paths", PathPackage, "./packages/foo-1.0-h0_0.tar.bz2"},
			{"source", SourcePackage, "./recipes/mylib"},
			{"pypi", ForeignPackage, "https://files.pythonhosted.org/packages/rich-13.9.4-py3-none-any.whl"},
		}

		for _, c := range cases {
			t.Run(c.env, func(t *testing.T) {
				records, err := r.Resolve(lf, c.env, config.Linux64)
				assert.Nil(t, records)

				require.True(t, errors.Is(err, ErrUnsupportedPackageKind))

				var re *ResolveError
				require.True(t, errors.As(err, &re))
				assert.Equal(t, c.kind, re.PackageKind)
				assert.Equal(t, c.location, re.Location)
				assert.Contains(t, err.Error(), c.location)
			})
		}
	})
}
