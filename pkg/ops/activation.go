package ops

import (
	"os"
	"path/filepath"

	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/shell"
	"github.com/pkg/errors"
)

// DefaultShells are the dialects activation scripts are written for when
// none are requested.
func DefaultShells(platform config.Platform) []shell.Shell {
	if platform.IsWindows() {
		return []shell.Shell{shell.CmdExe{}, shell.PowerShell{}, shell.Bash{}}
	}

	return []shell.Shell{shell.Bash{}, shell.Fish{}}
}

// ActivationDir returns where activation scripts of prefix are written.
func ActivationDir(prefix string) string {
	return filepath.Join(prefix, "conda-meta", "activation")
}

// ActivationWrite writes one activation script per shell dialect.
type ActivationWrite struct {
	common
}

// Generate writes <prefix>/conda-meta/activation/activate.<ext> for every
// shell, replacing earlier scripts. The scripts start from an environment
// with nothing activated and prepend the prefix to the PATH found at run
// time. Generation stops at the first shell that fails.
func (a *ActivationWrite) Generate(prefix string, shells []shell.Shell, platform config.Platform) error {
	if !filepath.IsAbs(prefix) {
		return &ActivationError{Err: errors.Wrapf(ErrRelativePrefix, "%s", prefix)}
	}

	dir := ActivationDir(prefix)

	for _, sh := range shells {
		path := filepath.Join(dir, "activate."+sh.Extension())

		if err := a.write(prefix, sh, platform, path); err != nil {
			return &ActivationError{Shell: sh.Name(), Path: path, Err: err}
		}

		a.L().Debug("wrote activation script", "shell", sh.Name(), "path", path)
	}

	return nil
}

func (a *ActivationWrite) write(prefix string, sh shell.Shell, platform config.Platform, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	activator, err := shell.FromPath(prefix, sh, platform)
	if err != nil {
		return err
	}

	script, err := activator.Activation(shell.ActivationVariables{Behavior: shell.Prepend})
	if err != nil {
		return err
	}

	return os.WriteFile(path, []byte(script.Contents()), 0644)
}
