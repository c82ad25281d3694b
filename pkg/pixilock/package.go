package pixilock

import (
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/pavelzw/pixi-install-to-prefix/pkg/data"
)

// Location is where a locked package comes from: either a URL or a
// filesystem path, never both.
type Location struct {
	URL  *url.URL
	Path string
}

// ParseLocation classifies s. Strings with a scheme are URLs, except file://
// URLs and Windows drive letters which are treated as paths.
func ParseLocation(s string) Location {
	if isWindowsDrive(s) {
		return Location{Path: s}
	}

	u, err := url.Parse(s)
	if err == nil && u.Scheme != "" {
		if u.Scheme == "file" {
			return Location{Path: u.Path}
		}

		return Location{URL: u}
	}

	return Location{Path: s}
}

func isWindowsDrive(s string) bool {
	if len(s) < 2 || s[1] != ':' {
		return false
	}

	c := s[0]
	if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
		return false
	}

	return len(s) == 2 || s[2] == '\\' || s[2] == '/'
}

func (l Location) IsURL() bool {
	return l.URL != nil
}

func (l Location) String() string {
	if l.URL != nil {
		return l.URL.String()
	}

	return l.Path
}

// FileName is the last segment of the location.
func (l Location) FileName() string {
	p := l.Path
	if l.URL != nil {
		p = l.URL.Path
	}

	p = strings.ReplaceAll(p, "\\", "/")

	return path.Base(p)
}

// Package is one of CondaBinaryPackage, CondaSourcePackage or PypiPackage.
// The set is closed: only this package can add variants.
type Package interface {
	PackageLocation() Location
	isPackage()
}

// CondaBinaryPackage is a prebuilt conda archive.
type CondaBinaryPackage struct {
	Record   data.PackageRecord
	FileName string
	Location Location
	Channel  string
}

// CondaSourcePackage is a conda package that has to be built from source
// before it can be installed.
type CondaSourcePackage struct {
	Name     string
	Location Location
}

// PypiPackage is a package from a Python package index.
type PypiPackage struct {
	Name     string
	Version  string
	Location Location
}

func (p *CondaBinaryPackage) PackageLocation() Location { return p.Location }
func (p *CondaSourcePackage) PackageLocation() Location { return p.Location }
func (p *PypiPackage) PackageLocation() Location        { return p.Location }

func (*CondaBinaryPackage) isPackage() {}
func (*CondaSourcePackage) isPackage() {}
func (*PypiPackage) isPackage()        {}

var archiveExtensions = []string{".tar.bz2", ".conda"}

// ArchiveStem strips a conda archive extension from a file name. ok is false
// when the name is not a conda archive.
func ArchiveStem(fileName string) (stem string, ok bool) {
	for _, ext := range archiveExtensions {
		if strings.HasSuffix(fileName, ext) {
			return strings.TrimSuffix(fileName, ext), true
		}
	}

	return fileName, false
}

// SplitArchiveName splits name-version-build out of an archive file name.
func SplitArchiveName(fileName string) (name, version, build string, ok bool) {
	stem, ok := ArchiveStem(fileName)
	if !ok {
		return "", "", "", false
	}

	bi := strings.LastIndexByte(stem, '-')
	if bi <= 0 {
		return "", "", "", false
	}

	vi := strings.LastIndexByte(stem[:bi], '-')
	if vi <= 0 {
		return "", "", "", false
	}

	return stem[:vi], stem[vi+1 : bi], stem[bi+1:], true
}

// buildNumberFromBuild takes the trailing _<n> of a build string.
func buildNumberFromBuild(build string) uint64 {
	idx := strings.LastIndexByte(build, '_')
	if idx == -1 {
		n, err := strconv.ParseUint(build, 10, 64)
		if err != nil {
			return 0
		}
		return n
	}

	n, err := strconv.ParseUint(build[idx+1:], 10, 64)
	if err != nil {
		return 0
	}

	return n
}

// channelAndSubdir derives the channel url and subdir from a package url of
// the form <channel>/<subdir>/<file>.
func channelAndSubdir(u *url.URL) (channel, subdir string) {
	p := strings.TrimSuffix(u.Path, "/")

	fi := strings.LastIndexByte(p, '/')
	if fi == -1 {
		return "", ""
	}

	dir := p[:fi]

	si := strings.LastIndexByte(dir, '/')
	if si == -1 {
		return "", ""
	}

	subdir = dir[si+1:]

	cu := *u
	cu.Path = dir[:si+1]
	cu.RawPath = ""
	cu.RawQuery = ""
	cu.Fragment = ""

	return cu.String(), subdir
}
