package ops

import (
	"fmt"

	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
	"github.com/pkg/errors"
)

var (
	ErrUnknownEnvironment     = errors.New("unknown environment")
	ErrUnsupportedPlatform    = errors.New("unsupported platform")
	ErrUnsupportedPackageKind = errors.New("unsupported package kind")

	ErrPrefixLock  = errors.New("cannot lock prefix")
	ErrEngine      = errors.New("installation failed")
	ErrPostInstall = errors.New("post-install step failed")

	ErrRelativePrefix = errors.New("prefix must be an absolute path")
)

// ResolveError is returned by LockResolve. Kind is one of
// ErrUnknownEnvironment, ErrUnsupportedPlatform or
// ErrUnsupportedPackageKind.
type ResolveError struct {
	Kind        error
	Environment string
	Platform    config.Platform

	// PackageKind and Location identify the offending package for
	// ErrUnsupportedPackageKind.
	PackageKind string
	Location    string
}

func (e *ResolveError) Error() string {
	switch e.Kind {
	case ErrUnknownEnvironment:
		return fmt.Sprintf("environment %q not found in lockfile", e.Environment)
	case ErrUnsupportedPlatform:
		return fmt.Sprintf("environment %q does not support platform %s", e.Environment, e.Platform)
	case ErrUnsupportedPackageKind:
		return fmt.Sprintf("unsupported %s in environment %q: %s", e.PackageKind, e.Environment, e.Location)
	default:
		return e.Kind.Error()
	}
}

func (e *ResolveError) Unwrap() error {
	return e.Kind
}

// InstallError is returned by PrefixInstall. Kind is ErrPrefixLock when the
// prefix could not be locked and the engine never ran, ErrEngine when the
// installation engine failed, and ErrPostInstall when the packages were
// installed but the prefix could not be finished.
type InstallError struct {
	Kind error
	Err  error
}

func (e *InstallError) Error() string {
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *InstallError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// ActivationError reports the activation script that could not be
// written.
type ActivationError struct {
	Shell string
	Path  string
	Err   error
}

func (e *ActivationError) Error() string {
	if e.Shell == "" {
		return "generating activation scripts: " + e.Err.Error()
	}

	return fmt.Sprintf("writing %s activation script %s: %s", e.Shell, e.Path, e.Err)
}

func (e *ActivationError) Unwrap() error {
	return e.Err
}
