package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pavelzw/pixi-install-to-prefix/pkg/data"
	"github.com/pkg/errors"
)

// MetaDir is the directory of a prefix holding one record per installed
// package.
const MetaDir = "conda-meta"

// ReadPrefix loads the records of every package installed in prefix. A
// prefix that does not exist yet has no packages.
func ReadPrefix(prefix string) ([]*data.PrefixRecord, error) {
	files, err := filepath.Glob(filepath.Join(prefix, MetaDir, "*.json"))
	if err != nil {
		return nil, err
	}

	sort.Strings(files)

	var records []*data.PrefixRecord

	for _, path := range files {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}

		var rec data.PrefixRecord

		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, errors.Wrapf(err, "parsing prefix record %s", path)
		}

		records = append(records, &rec)
	}

	return records, nil
}

// pythonMinor returns the major.minor version of the python package among
// records, or "".
func pythonMinor(records []*data.RepoDataRecord) string {
	for _, r := range records {
		if r.Name == "python" {
			return majorMinor(r.Version)
		}
	}

	return ""
}

func majorMinor(version string) string {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return version
	}

	return parts[0] + "." + parts[1]
}

// ComputeTransaction works out the operations that turn the installed
// packages into the desired ones. Removals come first, then the desired
// packages in their given order.
func ComputeTransaction(installed []*data.PrefixRecord, desired []*data.RepoDataRecord) *data.Transaction {
	current := map[string]*data.PrefixRecord{}

	var installedRepo []*data.RepoDataRecord

	for _, rec := range installed {
		current[rec.Name] = rec
		installedRepo = append(installedRepo, &rec.RepoDataRecord)
	}

	wanted := map[string]bool{}
	for _, rec := range desired {
		wanted[rec.Name] = true
	}

	var tx data.Transaction

	for _, rec := range installed {
		if !wanted[rec.Name] {
			tx.Operations = append(tx.Operations, &data.Operation{Kind: data.OpRemove, Old: rec})
		}
	}

	oldPy := pythonMinor(installedRepo)
	newPy := pythonMinor(desired)
	pyChanged := oldPy != "" && newPy != "" && oldPy != newPy

	for _, rec := range desired {
		old, ok := current[rec.Name]

		switch {
		case !ok:
			tx.Operations = append(tx.Operations, &data.Operation{Kind: data.OpInstall, New: rec})
		case !old.RepoDataRecord.SameArtifact(rec):
			tx.Operations = append(tx.Operations, &data.Operation{Kind: data.OpChange, Old: old, New: rec})
		case pyChanged && rec.NoArch == data.NoArchPython:
			tx.Operations = append(tx.Operations, &data.Operation{Kind: data.OpReinstall, Old: old, New: rec})
		}
	}

	return &tx
}

// linkOrder sorts the operations that place a package so that every
// package comes after the packages it depends on. Ties keep the given
// order. Dependency cycles are broken in the given order as well.
func linkOrder(ops []*data.Operation) []*data.Operation {
	byName := map[string]int{}
	for i, op := range ops {
		byName[op.New.Name] = i
	}

	pending := make([]int, len(ops))
	dependents := make([][]int, len(ops))

	for i, op := range ops {
		seen := map[int]bool{}

		for _, dep := range op.New.DependencyNames() {
			j, ok := byName[dep]
			if !ok || j == i || seen[j] {
				continue
			}

			seen[j] = true
			pending[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	done := make([]bool, len(ops))
	out := make([]*data.Operation, 0, len(ops))

	for len(out) < len(ops) {
		next := -1

		for i := range ops {
			if !done[i] && pending[i] == 0 {
				next = i
				break
			}
		}

		if next == -1 {
			for i := range ops {
				if !done[i] {
					next = i
					break
				}
			}
		}

		done[next] = true
		out = append(out, ops[next])

		for _, d := range dependents[next] {
			pending[d]--
		}
	}

	return out
}
