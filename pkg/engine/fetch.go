package engine

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"hash"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-getter"
	"github.com/hashicorp/go-hclog"
	"github.com/mr-tron/base58"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/data"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/humanize"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/prefixlock"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/progress"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
)

var ErrChecksumMismatch = errors.New("checksum mismatch")

// RepodataRecordFile is written into an extracted package once extraction
// has finished. Its presence marks the cache entry as complete.
const RepodataRecordFile = "info/repodata_record.json"

// Cache stores extracted packages, one directory per archive.
type Cache struct {
	Dir      string
	Client   *http.Client
	Reporter *progress.Reporter
	L        hclog.Logger
}

// EntryDir returns the directory rec is extracted to.
func (c *Cache) EntryDir(rec *data.RepoDataRecord) string {
	stem, _ := splitArchive(rec.FileName)
	return filepath.Join(c.Dir, stem)
}

func splitArchive(name string) (stem, ext string) {
	for _, ext := range []string{".tar.bz2", ".conda"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext), ext
		}
	}

	return name, ""
}

// FetchAll makes sure every record is present in the cache, fetching at
// most limit archives at once. It returns the entry directory per record.
func (c *Cache) FetchAll(ctx context.Context, records []*data.RepoDataRecord, limit int) (map[*data.RepoDataRecord]string, error) {
	dirs := make([]string, len(records))

	bar := c.Reporter.Count(int64(len(records)), "fetching")
	defer bar.Close()

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for i, rec := range records {
		i, rec := i, rec

		eg.Go(func() error {
			dir, err := c.Fetch(ctx, rec)
			if err != nil {
				return errors.Wrapf(err, "fetching %s", rec)
			}

			dirs[i] = dir
			bar.Tick()

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make(map[*data.RepoDataRecord]string, len(records))
	for i, rec := range records {
		out[rec] = dirs[i]
	}

	return out, nil
}

// cached reports whether dir holds a complete extraction of rec.
func cached(dir string, rec *data.RepoDataRecord) bool {
	b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(RepodataRecordFile)))
	if err != nil {
		return false
	}

	var have data.RepoDataRecord

	if err := json.Unmarshal(b, &have); err != nil {
		return false
	}

	return have.SameArtifact(rec)
}

// Fetch downloads and extracts rec unless the cache already has it.
// Concurrent fetches of the same archive, from this or another process,
// wait for each other.
func (c *Cache) Fetch(ctx context.Context, rec *data.RepoDataRecord) (string, error) {
	dir := c.EntryDir(rec)

	if cached(dir, rec) {
		c.L.Trace("cache hit", "package", rec.String(), "dir", dir)
		return dir, nil
	}

	unlock, err := prefixlock.Take(ctx, dir+".lock", func() {
		c.L.Debug("waiting for cache entry", "dir", dir)
	})
	if err != nil {
		return "", err
	}

	defer unlock()

	if cached(dir, rec) {
		return dir, nil
	}

	_, ext := splitArchive(rec.FileName)
	if ext == "" {
		return "", errors.Errorf("unsupported archive type: %s", rec.FileName)
	}

	archive := filepath.Join(c.Dir, tempName(rec.URL)+ext)
	defer os.Remove(archive)

	if err := c.download(ctx, rec, archive); err != nil {
		return "", err
	}

	if err := verify(archive, rec); err != nil {
		return "", err
	}

	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}

	c.L.Debug("extracting package", "package", rec.String(), "dir", dir)

	if err := Extract(archive, dir); err != nil {
		os.RemoveAll(dir)
		return "", errors.Wrapf(err, "extracting %s", rec.FileName)
	}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}

	marker := filepath.Join(dir, filepath.FromSlash(RepodataRecordFile))

	if err := os.MkdirAll(filepath.Dir(marker), 0755); err != nil {
		return "", err
	}

	if err := os.WriteFile(marker, b, 0644); err != nil {
		return "", err
	}

	return dir, nil
}

func tempName(u string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(u))

	return ".download-" + base58.Encode(h.Sum(nil))
}

func (c *Cache) download(ctx context.Context, rec *data.RepoDataRecord, dst string) error {
	u, err := url.Parse(rec.URL)
	if err != nil {
		return errors.Wrapf(err, "invalid package url %q", rec.URL)
	}

	// A partial file from an interrupted run would be resumed against an
	// archive that may have changed.
	os.Remove(dst)

	client := &getter.Client{Ctx: ctx}
	if c.Reporter != nil {
		client.ProgressListener = c.Reporter
	}

	var g getter.Getter

	switch u.Scheme {
	case "file":
		g = &getter.FileGetter{Copy: true}
	default:
		g = &getter.HttpGetter{Client: c.Client}
	}

	g.SetClient(client)

	c.L.Debug("downloading package", "url", rec.URL, "size", humanize.Bytes(int64(rec.Size)))

	if err := g.GetFile(dst, u); err != nil {
		return errors.Wrapf(err, "downloading %s", rec.URL)
	}

	return nil
}

// verify checks the archive against the sha256 of rec, or its md5 when no
// sha256 is known.
func verify(path string, rec *data.RepoDataRecord) error {
	var (
		h    hash.Hash
		want string
	)

	switch {
	case rec.SHA256 != "":
		h, want = sha256.New(), rec.SHA256
	case rec.MD5 != "":
		h, want = md5.New(), rec.MD5
	default:
		return nil
	}

	sv, err := hex.DecodeString(want)
	if err != nil {
		return errors.Wrapf(err, "invalid checksum for %s", rec.FileName)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return err
	}

	if !bytes.Equal(sv, h.Sum(nil)) {
		return errors.Wrapf(ErrChecksumMismatch, "%s: expected %s, got %x", rec.FileName, want, h.Sum(nil))
	}

	return nil
}
