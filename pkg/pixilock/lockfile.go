package pixilock

import (
	"io"
	"os"

	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
	"github.com/pkg/errors"
)

// DefaultEnvironment is the name pixi gives the environment of a workspace
// without explicit environments.
const DefaultEnvironment = "default"

var (
	ErrUnsupportedVersion = errors.New("unsupported lockfile version")
	ErrMissingPackage     = errors.New("environment references a package that is not in the lockfile")
)

// LockFile is a parsed pixi.lock.
type LockFile struct {
	Version int

	envOrder     []string
	environments map[string]*Environment
}

// Environment is one named environment of a lockfile.
type Environment struct {
	Name     string
	Channels []string

	platforms []config.Platform
	packages  map[config.Platform][]Package
}

// Load reads and parses the lockfile at path.
func Load(path string) (*LockFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read lockfile at %s", path)
	}

	defer f.Close()

	lf, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read lockfile at %s", path)
	}

	return lf, nil
}

// Parse reads a lockfile from r.
func Parse(r io.Reader) (*LockFile, error) {
	return parse(r)
}

// Environment looks up an environment by name.
func (l *LockFile) Environment(name string) (*Environment, bool) {
	env, ok := l.environments[name]
	return env, ok
}

// DefaultEnvironment returns the environment named "default".
func (l *LockFile) DefaultEnvironment() (*Environment, bool) {
	return l.Environment(DefaultEnvironment)
}

// Environments returns all environments in file order.
func (l *LockFile) Environments() []*Environment {
	out := make([]*Environment, 0, len(l.envOrder))
	for _, name := range l.envOrder {
		out = append(out, l.environments[name])
	}

	return out
}

// Platforms returns the platforms the environment was solved for, in file
// order.
func (e *Environment) Platforms() []config.Platform {
	return e.platforms
}

// Packages returns the packages locked for platform in lockfile order. ok is
// false when the platform is absent or has no packages.
func (e *Environment) Packages(platform config.Platform) ([]Package, bool) {
	pkgs := e.packages[platform]
	if len(pkgs) == 0 {
		return nil, false
	}

	return pkgs, true
}
