package engine

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pavelzw/pixi-install-to-prefix/pkg/data"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/fileutils"
	"github.com/pkg/errors"
)

// unlink removes the files of an installed package and its conda-meta
// record. Directories left empty are removed as well.
func (l *linker) unlink(rec *data.PrefixRecord) error {
	dirs := map[string]bool{}

	for _, rel := range rec.Files {
		path, err := l.dest(rel)
		if err != nil {
			return err
		}

		err = os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "removing %s", rel)
		}

		dirs[filepath.Dir(path)] = true
	}

	sorted := make([]string, 0, len(dirs))
	for dir := range dirs {
		sorted = append(sorted, dir)
	}

	// deepest first, so parents are only looked at once their children are
	// gone
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})

	for _, dir := range sorted {
		fileutils.RemoveEmptyParents(l.prefix, dir)
	}

	meta := filepath.Join(l.prefix, MetaDir, rec.MetaFileName())

	if err := os.Remove(meta); err != nil && !os.IsNotExist(err) {
		return err
	}

	l.L.Debug("unlinked package", "package", rec.RepoDataRecord.String(), "files", len(rec.Files))

	return nil
}
