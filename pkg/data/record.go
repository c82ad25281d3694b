package data

import (
	"fmt"
	"strings"
)

// PackageRecord is the metadata of a single conda package build, using the
// field names of repodata.json.
type PackageRecord struct {
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	Build         string   `json:"build"`
	BuildNumber   uint64   `json:"build_number"`
	Subdir        string   `json:"subdir"`
	NoArch        NoArch   `json:"noarch,omitempty"`
	Depends       []string `json:"depends"`
	Constrains    []string `json:"constrains,omitempty"`
	MD5           string   `json:"md5,omitempty"`
	SHA256        string   `json:"sha256,omitempty"`
	Size          uint64   `json:"size,omitempty"`
	License       string   `json:"license,omitempty"`
	LicenseFamily string   `json:"license_family,omitempty"`
	Timestamp     int64    `json:"timestamp,omitempty"`
	TrackFeatures []string `json:"track_features,omitempty"`
	Arch          string   `json:"arch,omitempty"`
	Platform      string   `json:"platform,omitempty"`
	Purls         []string `json:"purls,omitempty"`
}

// NoArch is the noarch kind of a package, empty for arch specific builds.
type NoArch string

const (
	NoArchNone    NoArch = ""
	NoArchGeneric NoArch = "generic"
	NoArchPython  NoArch = "python"
)

// ID returns the conventional name-version-build identifier.
func (p *PackageRecord) ID() string {
	return p.Name + "-" + p.Version + "-" + p.Build
}

// DependencyNames returns the package names of Depends, without their
// version constraints.
func (p *PackageRecord) DependencyNames() []string {
	var names []string

	for _, dep := range p.Depends {
		f := strings.Fields(dep)
		if len(f) == 0 {
			continue
		}

		name := f[0]
		if idx := strings.IndexAny(name, "=<>!~["); idx != -1 {
			name = name[:idx]
		}

		names = append(names, name)
	}

	return names
}

// RepoDataRecord is a PackageRecord together with where to download it. It
// is what the installation engine consumes.
type RepoDataRecord struct {
	PackageRecord

	FileName string `json:"fn"`
	URL      string `json:"url"`
	Channel  string `json:"channel,omitempty"`
}

func (r *RepoDataRecord) String() string {
	if r.Channel != "" {
		return fmt.Sprintf("%s::%s", channelName(r.Channel), r.ID())
	}

	return r.ID()
}

// SameArtifact reports whether both records refer to the same archive.
func (r *RepoDataRecord) SameArtifact(o *RepoDataRecord) bool {
	switch {
	case r.SHA256 != "" && o.SHA256 != "":
		return strings.EqualFold(r.SHA256, o.SHA256)
	case r.MD5 != "" && o.MD5 != "":
		return strings.EqualFold(r.MD5, o.MD5)
	default:
		return r.URL == o.URL
	}
}

func channelName(channel string) string {
	channel = strings.TrimSuffix(channel, "/")

	if idx := strings.LastIndexByte(channel, '/'); idx != -1 {
		return channel[idx+1:]
	}

	return channel
}

type LinkType int

const (
	LinkHard LinkType = 1
	LinkSoft LinkType = 2
	LinkCopy LinkType = 3
)

type Link struct {
	Source string   `json:"source"`
	Type   LinkType `json:"type"`
}

// PrefixRecord is what gets stored in <prefix>/conda-meta for every
// installed package.
type PrefixRecord struct {
	RepoDataRecord

	PackageTarballFullPath string      `json:"package_tarball_full_path,omitempty"`
	ExtractedPackageDir    string      `json:"extracted_package_dir,omitempty"`
	Files                  []string    `json:"files"`
	PathsData              PrefixPaths `json:"paths_data"`
	Link                   *Link       `json:"link,omitempty"`
	RequestedSpec          string      `json:"requested_spec,omitempty"`
}

// MetaFileName returns the name of the record's json file in conda-meta.
func (p *PrefixRecord) MetaFileName() string {
	return p.ID() + ".json"
}
