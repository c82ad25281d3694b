package engine

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/data"
	"github.com/pkg/errors"
)

// readPaths returns the files of an extracted package. Packages without
// info/paths.json describe their files in info/files and info/has_prefix.
func readPaths(pkgDir string) ([]*data.PathsEntry, error) {
	b, err := os.ReadFile(filepath.Join(pkgDir, "info", "paths.json"))
	if err == nil {
		var pj data.PathsJSON

		if err := json.Unmarshal(b, &pj); err != nil {
			return nil, errors.Wrapf(err, "parsing info/paths.json")
		}

		return pj.Paths, nil
	}

	if !os.IsNotExist(err) {
		return nil, err
	}

	return readLegacyPaths(pkgDir)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	defer f.Close()

	var lines []string

	br := bufio.NewScanner(f)
	for br.Scan() {
		line := strings.TrimSpace(br.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		lines = append(lines, line)
	}

	return lines, br.Err()
}

// placeholderDefault is the prefix conda-build used before it started
// recording placeholders in has_prefix.
const placeholderDefault = "/opt/anaconda1anaconda2anaconda3"

func readLegacyPaths(pkgDir string) ([]*data.PathsEntry, error) {
	files, err := readLines(filepath.Join(pkgDir, "info", "files"))
	if err != nil {
		return nil, err
	}

	hasPrefix, err := readLines(filepath.Join(pkgDir, "info", "has_prefix"))
	if err != nil {
		return nil, err
	}

	noLink, err := readLines(filepath.Join(pkgDir, "info", "no_link"))
	if err != nil {
		return nil, err
	}

	type prefixed struct {
		placeholder string
		mode        data.FileMode
	}

	withPrefix := map[string]prefixed{}

	for _, line := range hasPrefix {
		fields, err := shellquote.Split(line)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing info/has_prefix line %q", line)
		}

		switch len(fields) {
		case 1:
			withPrefix[fields[0]] = prefixed{placeholderDefault, data.FileModeText}
		case 3:
			withPrefix[fields[2]] = prefixed{fields[0], data.FileMode(fields[1])}
		default:
			return nil, errors.Errorf("invalid info/has_prefix line %q", line)
		}
	}

	skipLink := map[string]bool{}
	for _, p := range noLink {
		skipLink[p] = true
	}

	var entries []*data.PathsEntry

	for _, p := range files {
		ent := &data.PathsEntry{
			Path:     p,
			PathType: data.PathHardlink,
			NoLink:   skipLink[p],
		}

		if fi, err := os.Lstat(filepath.Join(pkgDir, filepath.FromSlash(p))); err == nil && fi.Mode()&os.ModeSymlink != 0 {
			ent.PathType = data.PathSoftlink
		}

		if pp, ok := withPrefix[p]; ok {
			ent.PrefixPlaceholder = pp.placeholder
			ent.FileMode = pp.mode
		}

		entries = append(entries, ent)
	}

	return entries, nil
}

func readLinkJSON(pkgDir string) (*data.LinkJSON, error) {
	b, err := os.ReadFile(filepath.Join(pkgDir, "info", "link.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	var lj data.LinkJSON

	if err := json.Unmarshal(b, &lj); err != nil {
		return nil, errors.Wrapf(err, "parsing info/link.json")
	}

	return &lj, nil
}
