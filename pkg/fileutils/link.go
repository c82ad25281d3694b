package fileutils

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
)

type Method int

const (
	Hardlinked Method = iota + 1
	Symlinked
	Copied
)

func (m Method) String() string {
	switch m {
	case Hardlinked:
		return "hardlink"
	case Symlinked:
		return "symlink"
	case Copied:
		return "copy"
	default:
		return "unknown"
	}
}

// Link places a single file from an extracted package at Dest. Symlinks
// are recreated as symlinks. Regular files are hardlinked when
// AllowHardlink is set and the filesystem permits it, and copied
// otherwise. An existing file at Dest is replaced.
type Link struct {
	Ctx           context.Context
	L             hclog.Logger
	Source        string
	Dest          string
	AllowHardlink bool
	ModeOr        os.FileMode
}

func (i *Link) shouldCancel() error {
	if i.Ctx == nil {
		return nil
	}

	select {
	case <-i.Ctx.Done():
		return i.Ctx.Err()
	default:
		return nil
	}
}

func (i *Link) Place() (Method, error) {
	if i.L == nil {
		i.L = hclog.NewNullLogger()
	}

	if err := i.shouldCancel(); err != nil {
		return 0, err
	}

	fi, err := os.Lstat(i.Source)
	if err != nil {
		return 0, err
	}

	err = os.MkdirAll(filepath.Dir(i.Dest), 0755)
	if err != nil {
		return 0, err
	}

	if _, err := os.Lstat(i.Dest); err == nil {
		if err := os.Remove(i.Dest); err != nil {
			return 0, err
		}
	}

	if fi.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(i.Source)
		if err != nil {
			return 0, err
		}

		i.L.Trace("symlink", "target", target, "new", i.Dest)

		return Symlinked, os.Symlink(target, i.Dest)
	}

	if i.AllowHardlink && i.ModeOr == 0 {
		err := os.Link(i.Source, i.Dest)
		if err == nil {
			i.L.Trace("hardlink", "old", i.Source, "new", i.Dest)
			return Hardlinked, nil
		}

		i.L.Trace("hardlink failed, copying", "old", i.Source, "error", err)
	}

	return Copied, i.copyFile(fi)
}

func (i *Link) copyFile(fi os.FileInfo) error {
	i.L.Trace("copy entry", "from", i.Source, "to", i.Dest)

	f, err := os.Open(i.Source)
	if err != nil {
		return err
	}

	defer f.Close()

	defer func() {
		// fix the times
		os.Chtimes(i.Dest, time.Time{}, fi.ModTime())
	}()

	tg, err := os.OpenFile(
		i.Dest,
		os.O_WRONLY|os.O_CREATE|os.O_TRUNC,
		fi.Mode().Perm()|i.ModeOr.Perm(),
	)
	if err != nil {
		return err
	}

	defer tg.Close()

	_, err = io.Copy(tg, f)

	return err
}

// WriteFile writes data to dest with the permissions of the file at
// source. It is used for files whose contents were rewritten while
// linking.
func WriteFile(source, dest string, data []byte) error {
	fi, err := os.Stat(source)
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(dest), 0755)
	if err != nil {
		return err
	}

	if _, err := os.Lstat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			return err
		}
	}

	return os.WriteFile(dest, data, fi.Mode().Perm())
}

// RemoveEmptyParents removes dir and its parents up to but excluding root
// for as long as they are empty.
func RemoveEmptyParents(root, dir string) {
	root = filepath.Clean(root)

	for {
		dir = filepath.Clean(dir)
		if dir == root || len(dir) <= len(root) {
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}

		if err := os.Remove(dir); err != nil {
			return
		}

		dir = filepath.Dir(dir)
	}
}
