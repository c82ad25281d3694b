package ops

import (
	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/data"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/pixilock"
	"github.com/pkg/errors"
)

// Labels used in ErrUnsupportedPackageKind errors.
const (
	PathPackage    = "path package"
	SourcePackage  = "source package"
	ForeignPackage = "foreign package"
)

// LockResolve turns the packages of one environment and platform of a
// lockfile into records the installation engine can fetch.
type LockResolve struct {
	common
}

// Resolve returns the records of env for platform in lockfile order. Only
// binary conda packages located by URL can be installed; any other package
// fails the whole resolution.
func (r *LockResolve) Resolve(lf *pixilock.LockFile, env string, platform config.Platform) ([]*data.RepoDataRecord, error) {
	environment, ok := lf.Environment(env)
	if !ok {
		return nil, &ResolveError{Kind: ErrUnknownEnvironment, Environment: env, Platform: platform}
	}

	pkgs, ok := environment.Packages(platform)
	if !ok {
		return nil, &ResolveError{Kind: ErrUnsupportedPlatform, Environment: env, Platform: platform}
	}

	records := make([]*data.RepoDataRecord, 0, len(pkgs))

	for _, pkg := range pkgs {
		var kind string

		switch p := pkg.(type) {
		case *pixilock.CondaBinaryPackage:
			if !p.Location.IsURL() {
				kind = PathPackage
				break
			}

			records = append(records, &data.RepoDataRecord{
				PackageRecord: p.Record,
				FileName:      p.FileName,
				URL:           p.Location.URL.String(),
				Channel:       p.Channel,
			})

			continue
		case *pixilock.CondaSourcePackage:
			kind = SourcePackage
		case *pixilock.PypiPackage:
			kind = ForeignPackage
		default:
			return nil, errors.Errorf("unhandled locked package type %T", pkg)
		}

		return nil, &ResolveError{
			Kind:        ErrUnsupportedPackageKind,
			Environment: env,
			Platform:    platform,
			PackageKind: kind,
			Location:    pkg.PackageLocation().String(),
		}
	}

	r.L().Debug("resolved packages", "environment", env, "platform", platform, "count", len(records))

	return records, nil
}
