package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/hashicorp/go-hclog"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/data"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/fileutils"
	"github.com/pkg/errors"
)

var (
	ErrPrefixTooLong = errors.New("prefix is longer than the placeholder of a binary file")
	ErrNoPython      = errors.New("noarch python package needs python in the environment")
)

// maxShebang is the longest shebang line the Linux kernel accepts.
const maxShebang = 127

// pythonInfo describes where noarch python packages go.
type pythonInfo struct {
	version      string
	sitePackages string
	binDir       string
	executable   string
}

func newPythonInfo(version string, platform config.Platform) *pythonInfo {
	if platform.IsWindows() {
		return &pythonInfo{
			version:      version,
			sitePackages: "Lib/site-packages",
			binDir:       "Scripts",
			executable:   "python.exe",
		}
	}

	return &pythonInfo{
		version:      version,
		sitePackages: "lib/python" + version + "/site-packages",
		binDir:       "bin",
		executable:   "bin/python" + version,
	}
}

// targetPath maps a path of a noarch python package to its place in the
// prefix.
func (p *pythonInfo) targetPath(rel string) string {
	switch {
	case strings.HasPrefix(rel, "site-packages/"):
		return p.sitePackages + strings.TrimPrefix(rel, "site-packages")
	case strings.HasPrefix(rel, "python-scripts/"):
		return p.binDir + strings.TrimPrefix(rel, "python-scripts")
	default:
		return rel
	}
}

type linker struct {
	prefix   string
	platform config.Platform
	python   *pythonInfo
	L        hclog.Logger
}

// replaceText substitutes every occurrence of placeholder.
func replaceText(content []byte, placeholder, prefix string) []byte {
	return bytes.ReplaceAll(content, []byte(placeholder), []byte(prefix))
}

// replaceBinary substitutes placeholder inside the NUL terminated strings
// of a binary, padding each rewritten string with NULs so that every offset
// in the file stays the same.
func replaceBinary(content []byte, placeholder, prefix string) ([]byte, error) {
	ph := []byte(placeholder)
	np := []byte(prefix)

	out := make([]byte, 0, len(content))

	for {
		i := bytes.Index(content, ph)
		if i < 0 {
			break
		}

		end := bytes.IndexByte(content[i:], 0)
		if end < 0 {
			end = len(content) - i
		}

		seg := content[i : i+end]
		repl := bytes.ReplaceAll(seg, ph, np)

		if len(repl) > len(seg) {
			return nil, errors.Wrapf(ErrPrefixTooLong, "%d > %d bytes", len(prefix), len(placeholder))
		}

		out = append(out, content[:i]...)
		out = append(out, repl...)
		out = append(out, make([]byte, len(seg)-len(repl))...)

		content = content[i+end:]
	}

	return append(out, content...), nil
}

// fixShebang rewrites a shebang the kernel would not run, either because
// it is too long or because the interpreter path contains spaces, into one
// that looks the interpreter up with /usr/bin/env.
func fixShebang(content []byte, prefix string) []byte {
	if !bytes.HasPrefix(content, []byte("#!")) {
		return content
	}

	nl := bytes.IndexByte(content, '\n')
	if nl < 0 {
		nl = len(content)
	}

	line := string(content[2:nl])

	var exe, args string

	if strings.HasPrefix(line, prefix) {
		rest := line[len(prefix):]
		if i := strings.IndexAny(rest, " \t"); i >= 0 {
			exe, args = prefix+rest[:i], rest[i:]
		} else {
			exe = line
		}
	} else {
		if i := strings.IndexAny(line, " \t"); i >= 0 {
			exe, args = line[:i], line[i:]
		} else {
			exe = line
		}
	}

	if len(line)+2 <= maxShebang && !strings.ContainsAny(exe, " \t") {
		return content
	}

	fixed := "#!/usr/bin/env " + path.Base(filepath.ToSlash(exe)) + args

	return append([]byte(fixed), content[nl:]...)
}

// dest resolves rel inside the prefix. Only the parent is resolved so that
// an existing symlink at rel is replaced rather than followed.
func (l *linker) dest(rel string) (string, error) {
	rel = filepath.FromSlash(rel)

	dir, err := securejoin.SecureJoin(l.prefix, filepath.Dir(rel))
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, filepath.Base(rel)), nil
}

// linkEntry places one file of the package at rel inside the prefix.
func (l *linker) linkEntry(ctx context.Context, pkgDir string, ent *data.PathsEntry, rel string) (*data.PrefixPathsEntry, error) {
	src := filepath.Join(pkgDir, filepath.FromSlash(ent.Path))

	dst, err := l.dest(rel)
	if err != nil {
		return nil, err
	}

	out := &data.PrefixPathsEntry{
		Path:              rel,
		PathType:          ent.PathType,
		PrefixPlaceholder: ent.PrefixPlaceholder,
		FileMode:          ent.FileMode,
		NoLink:            ent.NoLink,
		SHA256:            ent.SHA256,
		SizeInBytes:       ent.SizeInBytes,
	}

	if rel != ent.Path {
		out.OriginalPath = ent.Path
	}

	switch {
	case ent.PathType == data.PathDirectory:
		return out, os.MkdirAll(dst, 0755)
	case ent.FileMode == data.FileModeBinary && l.platform.IsWindows():
		// Windows binaries locate their prefix at run time and are linked
		// unchanged below.
	case ent.PrefixPlaceholder != "" && ent.PathType != data.PathSoftlink:
		content, err := os.ReadFile(src)
		if err != nil {
			return nil, err
		}

		if ent.FileMode == data.FileModeBinary {
			content, err = replaceBinary(content, ent.PrefixPlaceholder, l.prefix)
			if err != nil {
				return nil, errors.Wrapf(err, "replacing prefix in %s", ent.Path)
			}
		} else {
			content = replaceText(content, ent.PrefixPlaceholder, l.prefix)

			if !l.platform.IsWindows() {
				content = fixShebang(content, l.prefix)
			}
		}

		l.L.Trace("replaced prefix", "path", rel, "placeholder", ent.PrefixPlaceholder)

		return out, fileutils.WriteFile(src, dst, content)
	}

	link := fileutils.Link{
		Ctx:           ctx,
		L:             l.L,
		Source:        src,
		Dest:          dst,
		AllowHardlink: !ent.NoLink,
	}

	if _, err := link.Place(); err != nil {
		return nil, err
	}

	return out, nil
}

// entryPoint writes the launcher script of a console_scripts entry point
// given as "name = module:func".
func (l *linker) entryPoint(spec string) (*data.PrefixPathsEntry, error) {
	name, target, ok := strings.Cut(spec, "=")
	if !ok {
		return nil, errors.Errorf("invalid entry point %q", spec)
	}

	name = strings.TrimSpace(name)

	module, fn, ok := strings.Cut(strings.TrimSpace(target), ":")
	if !ok {
		return nil, errors.Errorf("invalid entry point %q", spec)
	}

	fn = strings.TrimSpace(fn)

	var (
		rel    string
		script strings.Builder
	)

	if l.platform.IsWindows() {
		rel = l.python.binDir + "/" + name + "-script.py"
	} else {
		rel = l.python.binDir + "/" + name

		shebang := "#!" + filepath.Join(l.prefix, filepath.FromSlash(l.python.executable))
		script.Write(fixShebang([]byte(shebang), l.prefix))
		script.WriteString("\n")
	}

	fmt.Fprintf(&script, `# -*- coding: utf-8 -*-
import re
import sys

from %s import %s

if __name__ == '__main__':
    sys.argv[0] = re.sub(r'(-script\.pyw?|\.exe)?$', '', sys.argv[0])
    sys.exit(%s())
`, strings.TrimSpace(module), strings.SplitN(fn, ".", 2)[0], fn)

	dst, err := l.dest(rel)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return nil, err
	}

	if err := os.WriteFile(dst, []byte(script.String()), 0755); err != nil {
		return nil, err
	}

	return &data.PrefixPathsEntry{Path: rel, PathType: data.PathPythonEntryPoint}, nil
}

// link places every file of the package extracted at pkgDir into the
// prefix and records it in conda-meta.
func (l *linker) link(ctx context.Context, rec *data.RepoDataRecord, pkgDir string) (*data.PrefixRecord, error) {
	entries, err := readPaths(pkgDir)
	if err != nil {
		return nil, err
	}

	noarchPython := rec.NoArch == data.NoArchPython

	if noarchPython && l.python == nil {
		return nil, errors.Wrapf(ErrNoPython, "%s", rec)
	}

	prec := &data.PrefixRecord{
		RepoDataRecord:      *rec,
		ExtractedPackageDir: pkgDir,
		PathsData:           data.PrefixPaths{PathsVersion: 1},
		Link:                &data.Link{Source: pkgDir, Type: data.LinkHard},
	}

	for _, ent := range entries {
		rel := ent.Path
		if noarchPython {
			rel = l.python.targetPath(rel)
		}

		pe, err := l.linkEntry(ctx, pkgDir, ent, rel)
		if err != nil {
			return nil, errors.Wrapf(err, "linking %s", ent.Path)
		}

		prec.PathsData.Paths = append(prec.PathsData.Paths, pe)

		if pe.PathType != data.PathDirectory {
			prec.Files = append(prec.Files, rel)
		}
	}

	if noarchPython {
		lj, err := readLinkJSON(pkgDir)
		if err != nil {
			return nil, err
		}

		if lj != nil {
			for _, ep := range lj.NoArch.EntryPoints {
				pe, err := l.entryPoint(ep)
				if err != nil {
					return nil, err
				}

				prec.PathsData.Paths = append(prec.PathsData.Paths, pe)
				prec.Files = append(prec.Files, pe.Path)
			}
		}
	}

	if err := writePrefixRecord(l.prefix, prec); err != nil {
		return nil, err
	}

	return prec, nil
}

func writePrefixRecord(prefix string, prec *data.PrefixRecord) error {
	dir := filepath.Join(prefix, MetaDir)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(prec, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, prec.MetaFileName()), b, 0644)
}
