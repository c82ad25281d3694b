package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/kballard/go-shellquote"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/data"
)

type scriptAction string

const (
	postLink  scriptAction = "post-link"
	preUnlink scriptAction = "pre-unlink"
)

// scriptPath returns where a package keeps the script for action.
func (l *linker) scriptPath(rec *data.RepoDataRecord, action scriptAction) string {
	if l.platform.IsWindows() {
		return filepath.Join(l.prefix, "Scripts", fmt.Sprintf(".%s-%s.bat", rec.Name, action))
	}

	return filepath.Join(l.prefix, "bin", fmt.Sprintf(".%s-%s.sh", rec.Name, action))
}

// runScript runs the link script of rec for action if the package ships
// one. A failing script is reported but does not fail the installation.
func (l *linker) runScript(ctx context.Context, rec *data.RepoDataRecord, action scriptAction) {
	path := l.scriptPath(rec, action)

	if _, err := os.Stat(path); err != nil {
		return
	}

	var args []string
	if l.platform.IsWindows() {
		args = []string{"cmd.exe", "/d", "/c", path}
	} else {
		args = []string{"/bin/sh", path}
	}

	l.L.Debug("running link script", "package", rec.String(), "command", shellquote.Join(args...))

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = l.prefix
	cmd.Env = append(os.Environ(),
		"PREFIX="+l.prefix,
		"ROOT_PREFIX="+l.prefix,
		"PKG_NAME="+rec.Name,
		"PKG_VERSION="+rec.Version,
		"PKG_BUILDNUM="+fmt.Sprint(rec.BuildNumber),
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		l.L.Warn("link script failed",
			"package", rec.String(),
			"action", string(action),
			"error", err,
			"output", string(out),
		)

		return
	}

	l.L.Trace("link script finished", "package", rec.String(), "output", string(out))
}
