package pixilock

import (
	"fmt"
	"io"
	"strings"

	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/data"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	minVersion = 4
	maxVersion = 6
)

type rawLockFile struct {
	Version      int           `yaml:"version"`
	Environments yaml.Node     `yaml:"environments"`
	Packages     []*rawPackage `yaml:"packages"`
}

type rawEnvironment struct {
	Channels []rawChannel `yaml:"channels"`
	Packages yaml.Node    `yaml:"packages"`
}

type rawChannel struct {
	URL string `yaml:"url"`
}

type rawRef struct {
	Conda string `yaml:"conda"`
	Pypi  string `yaml:"pypi"`
}

type rawPackage struct {
	// v6 keys the entry by its kind.
	Conda string `yaml:"conda"`
	Pypi  string `yaml:"pypi"`

	// v4 and v5 use an explicit kind and url or path.
	Kind string `yaml:"kind"`
	URL  string `yaml:"url"`
	Path string `yaml:"path"`

	Name          string     `yaml:"name"`
	Version       string     `yaml:"version"`
	Build         string     `yaml:"build"`
	BuildNumber   *uint64    `yaml:"build_number"`
	Subdir        string     `yaml:"subdir"`
	NoArch        string     `yaml:"noarch"`
	Depends       []string   `yaml:"depends"`
	Constrains    []string   `yaml:"constrains"`
	MD5           string     `yaml:"md5"`
	SHA256        string     `yaml:"sha256"`
	Size          uint64     `yaml:"size"`
	License       string     `yaml:"license"`
	LicenseFamily string     `yaml:"license_family"`
	Timestamp     int64      `yaml:"timestamp"`
	TrackFeatures stringList `yaml:"track_features"`
	Arch          string     `yaml:"arch"`
	Platform      string     `yaml:"platform"`
	Purls         []string   `yaml:"purls"`
	Channel       string     `yaml:"channel"`
	FileName      string     `yaml:"fn"`
}

// stringList accepts both a sequence and a whitespace or comma separated
// scalar.
type stringList []string

func (s *stringList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.SequenceNode:
		var l []string
		if err := n.Decode(&l); err != nil {
			return err
		}
		*s = l
	case yaml.ScalarNode:
		*s = strings.FieldsFunc(n.Value, func(r rune) bool {
			return r == ',' || r == ' '
		})
	default:
		return fmt.Errorf("line %d: expected a list of strings", n.Line)
	}

	return nil
}

func (p *rawPackage) kind() string {
	switch {
	case p.Conda != "":
		return "conda"
	case p.Pypi != "":
		return "pypi"
	default:
		return p.Kind
	}
}

func (p *rawPackage) location() string {
	switch {
	case p.Conda != "":
		return p.Conda
	case p.Pypi != "":
		return p.Pypi
	case p.URL != "":
		return p.URL
	default:
		return p.Path
	}
}

func parse(r io.Reader) (*LockFile, error) {
	var raw rawLockFile

	err := yaml.NewDecoder(r).Decode(&raw)
	if err != nil {
		if err == io.EOF {
			return nil, errors.New("lockfile is empty")
		}

		return nil, errors.Wrapf(err, "invalid lockfile")
	}

	if raw.Version < minVersion || raw.Version > maxVersion {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d (supported: %d to %d)", raw.Version, minVersion, maxVersion)
	}

	index := make(map[string]*rawPackage, len(raw.Packages))

	for _, p := range raw.Packages {
		key := p.kind() + ":" + p.location()
		if _, ok := index[key]; !ok {
			index[key] = p
		}
	}

	lf := &LockFile{
		Version:      raw.Version,
		environments: map[string]*Environment{},
	}

	if raw.Environments.Kind == 0 {
		return lf, nil
	}

	if raw.Environments.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: environments must be a mapping", raw.Environments.Line)
	}

	built := map[string]Package{}

	content := raw.Environments.Content
	for i := 0; i+1 < len(content); i += 2 {
		name := content[i].Value

		var renv rawEnvironment

		err := content[i+1].Decode(&renv)
		if err != nil {
			return nil, errors.Wrapf(err, "environment %s", name)
		}

		env, err := buildEnvironment(name, &renv, index, built)
		if err != nil {
			return nil, errors.Wrapf(err, "environment %s", name)
		}

		lf.envOrder = append(lf.envOrder, name)
		lf.environments[name] = env
	}

	return lf, nil
}

func buildEnvironment(name string, renv *rawEnvironment, index map[string]*rawPackage, built map[string]Package) (*Environment, error) {
	env := &Environment{
		Name:     name,
		packages: map[config.Platform][]Package{},
	}

	for _, ch := range renv.Channels {
		env.Channels = append(env.Channels, ch.URL)
	}

	if renv.Packages.Kind == 0 {
		return env, nil
	}

	if renv.Packages.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: packages must be a mapping of platforms", renv.Packages.Line)
	}

	content := renv.Packages.Content
	for i := 0; i+1 < len(content); i += 2 {
		platform, err := config.ParsePlatform(content[i].Value)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", content[i].Line)
		}

		var refs []rawRef

		err = content[i+1].Decode(&refs)
		if err != nil {
			return nil, errors.Wrapf(err, "platform %s", platform)
		}

		var pkgs []Package

		for _, ref := range refs {
			kind, loc := "conda", ref.Conda
			if loc == "" {
				kind, loc = "pypi", ref.Pypi
			}

			if loc == "" {
				return nil, fmt.Errorf("platform %s: package reference without conda or pypi key", platform)
			}

			key := kind + ":" + loc

			pkg, ok := built[key]
			if !ok {
				rp, ok := index[key]
				if !ok {
					return nil, errors.Wrapf(ErrMissingPackage, "%s", loc)
				}

				pkg = convert(kind, rp)
				built[key] = pkg
			}

			pkgs = append(pkgs, pkg)
		}

		env.platforms = append(env.platforms, platform)
		env.packages[platform] = pkgs
	}

	return env, nil
}

func convert(kind string, rp *rawPackage) Package {
	loc := ParseLocation(rp.location())

	if kind == "pypi" {
		return &PypiPackage{
			Name:     rp.Name,
			Version:  rp.Version,
			Location: loc,
		}
	}

	fileName := rp.FileName
	if fileName == "" {
		fileName = loc.FileName()
	}

	if _, ok := ArchiveStem(fileName); !ok {
		return &CondaSourcePackage{
			Name:     rp.Name,
			Location: loc,
		}
	}

	rec := data.PackageRecord{
		Name:          rp.Name,
		Version:       rp.Version,
		Build:         rp.Build,
		Subdir:        rp.Subdir,
		NoArch:        data.NoArch(rp.NoArch),
		Depends:       rp.Depends,
		Constrains:    rp.Constrains,
		MD5:           rp.MD5,
		SHA256:        rp.SHA256,
		Size:          rp.Size,
		License:       rp.License,
		LicenseFamily: rp.LicenseFamily,
		Timestamp:     rp.Timestamp,
		TrackFeatures: rp.TrackFeatures,
		Arch:          rp.Arch,
		Platform:      rp.Platform,
		Purls:         rp.Purls,
	}

	if rec.Depends == nil {
		rec.Depends = []string{}
	}

	if name, version, build, ok := SplitArchiveName(fileName); ok {
		if rec.Name == "" {
			rec.Name = name
		}
		if rec.Version == "" {
			rec.Version = version
		}
		if rec.Build == "" {
			rec.Build = build
		}
	}

	if rp.BuildNumber != nil {
		rec.BuildNumber = *rp.BuildNumber
	} else {
		rec.BuildNumber = buildNumberFromBuild(rec.Build)
	}

	channel := rp.Channel

	if loc.URL != nil {
		ch, subdir := channelAndSubdir(loc.URL)
		if rec.Subdir == "" {
			rec.Subdir = subdir
		}
		if channel == "" {
			channel = ch
		}
	}

	return &CondaBinaryPackage{
		Record:   rec,
		FileName: fileName,
		Location: loc,
		Channel:  channel,
	}
}
