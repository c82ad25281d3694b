package engine

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"io"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

var ErrUnknownArchive = errors.New("unknown archive format")

// Extract unpacks a .tar.bz2 or .conda archive into dir.
func Extract(archive, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	switch {
	case strings.HasSuffix(archive, ".tar.bz2"):
		f, err := os.Open(archive)
		if err != nil {
			return err
		}

		defer f.Close()

		return untar(bzip2.NewReader(f), dir)
	case strings.HasSuffix(archive, ".conda"):
		return extractConda(archive, dir)
	default:
		return errors.Wrapf(ErrUnknownArchive, "%s", filepath.Base(archive))
	}
}

// extractConda unpacks the info and pkg tarballs of a .conda archive. The
// outer zip also carries a metadata.json which is not needed.
func extractConda(archive, dir string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}

	defer zr.Close()

	var found int

	for _, zf := range zr.File {
		if !strings.HasSuffix(zf.Name, ".tar.zst") {
			continue
		}

		if err := extractZstdTar(zf, dir); err != nil {
			return errors.Wrapf(err, "extracting %s", zf.Name)
		}

		found++
	}

	if found == 0 {
		return errors.New("no package contents in .conda archive")
	}

	return nil
}

func extractZstdTar(zf *zip.File, dir string) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}

	defer rc.Close()

	dec, err := zstd.NewReader(rc)
	if err != nil {
		return err
	}

	defer dec.Close()

	return untar(dec, dir)
}

// untar writes the entries of r below dir. Entry names and hardlink
// targets are resolved with securejoin so nothing lands outside dir, even
// through symlinks created by earlier entries.
func untar(r io.Reader, dir string) error {
	tr := tar.NewReader(r)

	for {
		hdr, err := tr.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}

			return err
		}

		path, err := securejoin.SecureJoin(dir, hdr.Name)
		if err != nil {
			return err
		}

		if path == filepath.Clean(dir) {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, 0755); err != nil {
				return err
			}

			continue
		case tar.TypeReg, tar.TypeSymlink, tar.TypeLink:
			// handled below
		default:
			continue
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}

		if _, err := os.Lstat(path); err == nil {
			if err := os.Remove(path); err != nil {
				return err
			}
		}

		switch hdr.Typeflag {
		case tar.TypeSymlink:
			if err := os.Symlink(hdr.Linkname, path); err != nil {
				return err
			}

			continue
		case tar.TypeLink:
			target, err := securejoin.SecureJoin(dir, hdr.Linkname)
			if err != nil {
				return err
			}

			if err := os.Link(target, path); err != nil {
				return err
			}

			continue
		}

		mode := hdr.FileInfo().Mode().Perm() | 0200

		f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
		if err != nil {
			return err
		}

		_, err = io.Copy(f, tr)
		if cerr := f.Close(); err == nil {
			err = cerr
		}

		if err != nil {
			return err
		}

		os.Chtimes(path, hdr.ModTime, hdr.ModTime)
	}
}
