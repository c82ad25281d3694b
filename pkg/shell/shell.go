package shell

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
	"github.com/pkg/errors"
	"mvdan.cc/sh/v3/syntax"
)

var (
	ErrUnknownShell = errors.New("unknown shell")
	ErrInvalidName  = errors.New("invalid environment variable name")
)

// checkName rejects names that would need quoting in any dialect.
func checkName(name string) error {
	if !syntax.ValidName(name) {
		return errors.Wrapf(ErrInvalidName, "%q", name)
	}

	return nil
}

// PathBehavior controls how activation changes PATH.
type PathBehavior int

const (
	Prepend PathBehavior = iota
	Append
	Replace
)

// Shell writes the statements of one shell dialect.
type Shell interface {
	Name() string

	// Extension is used for the activation script written for this shell.
	Extension() string

	// CanSource reports whether an activate.d script with the given
	// extension (without dot) can be sourced by this shell.
	CanSource(ext string) bool

	SetEnv(w *strings.Builder, name, value string) error
	SetPath(w *strings.Builder, paths []string, behavior PathBehavior, platform config.Platform) error
	Source(w *strings.Builder, path string) error
}

// Names lists the shells accepted by Parse.
var Names = []string{"bash", "zsh", "fish", "xonsh", "powershell", "cmd", "nushell"}

func Parse(name string) (Shell, error) {
	switch strings.ToLower(name) {
	case "bash":
		return Bash{}, nil
	case "zsh":
		return Zsh{}, nil
	case "fish":
		return Fish{}, nil
	case "xonsh":
		return Xonsh{}, nil
	case "powershell", "pwsh":
		return PowerShell{}, nil
	case "cmd", "cmd.exe":
		return CmdExe{}, nil
	case "nushell", "nu":
		return NuShell{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownShell, "%q (expected one of %s)", name, strings.Join(Names, ", "))
	}
}

func pathSeparator(platform config.Platform) string {
	if platform.IsWindows() {
		return ";"
	}

	return ":"
}

func bashQuote(s string) (string, error) {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return "", errors.Wrapf(err, "cannot quote %q", s)
	}

	return q, nil
}

// posixSetPath is shared by bash and zsh. An unset or empty PATH does not
// leave a dangling separator.
func posixSetPath(w *strings.Builder, paths []string, behavior PathBehavior, platform config.Platform) error {
	sep := pathSeparator(platform)

	joined, err := bashQuote(strings.Join(paths, sep))
	if err != nil {
		return err
	}

	switch behavior {
	case Replace:
		fmt.Fprintf(w, "export PATH=%s\n", joined)
	case Append:
		fmt.Fprintf(w, "export PATH=\"${PATH:+${PATH}%s}\"%s\n", sep, joined)
	default:
		fmt.Fprintf(w, "export PATH=%s\"${PATH:+%s${PATH}}\"\n", joined, sep)
	}

	return nil
}

type Bash struct{}

func (Bash) Name() string              { return "bash" }
func (Bash) Extension() string         { return "sh" }
func (Bash) CanSource(ext string) bool { return ext == "sh" }

func (Bash) SetEnv(w *strings.Builder, name, value string) error {
	if err := checkName(name); err != nil {
		return err
	}

	q, err := bashQuote(value)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "export %s=%s\n", name, q)

	return nil
}

func (Bash) SetPath(w *strings.Builder, paths []string, behavior PathBehavior, platform config.Platform) error {
	return posixSetPath(w, paths, behavior, platform)
}

func (Bash) Source(w *strings.Builder, path string) error {
	q, err := bashQuote(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, ". %s\n", q)

	return nil
}

type Zsh struct{ Bash }

func (Zsh) Name() string      { return "zsh" }
func (Zsh) Extension() string { return "zsh" }

func (Zsh) CanSource(ext string) bool {
	return ext == "sh" || ext == "zsh"
}

// fishQuote single quotes s. Inside single quotes fish only treats \\ and
// \' specially.
func fishQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

type Fish struct{}

func (Fish) Name() string              { return "fish" }
func (Fish) Extension() string         { return "fish" }
func (Fish) CanSource(ext string) bool { return ext == "fish" }

func (Fish) SetEnv(w *strings.Builder, name, value string) error {
	if err := checkName(name); err != nil {
		return err
	}

	fmt.Fprintf(w, "set -gx %s %s\n", name, fishQuote(value))
	return nil
}

func (Fish) SetPath(w *strings.Builder, paths []string, behavior PathBehavior, platform config.Platform) error {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = fishQuote(p)
	}

	list := strings.Join(quoted, " ")

	switch behavior {
	case Replace:
		fmt.Fprintf(w, "set -gx PATH %s\n", list)
	case Append:
		fmt.Fprintf(w, "set -gx PATH $PATH %s\n", list)
	default:
		fmt.Fprintf(w, "set -gx PATH %s $PATH\n", list)
	}

	return nil
}

func (Fish) Source(w *strings.Builder, path string) error {
	fmt.Fprintf(w, "source %s\n", fishQuote(path))
	return nil
}

// pyQuote produces a python string literal.
func pyQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return "'" + s + "'"
}

type Xonsh struct{}

func (Xonsh) Name() string      { return "xonsh" }
func (Xonsh) Extension() string { return "xsh" }

func (Xonsh) CanSource(ext string) bool {
	return ext == "xsh" || ext == "sh"
}

func (Xonsh) SetEnv(w *strings.Builder, name, value string) error {
	if err := checkName(name); err != nil {
		return err
	}

	fmt.Fprintf(w, "$%s = %s\n", name, pyQuote(value))
	return nil
}

func (Xonsh) SetPath(w *strings.Builder, paths []string, behavior PathBehavior, platform config.Platform) error {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = pyQuote(p)
	}

	list := "[" + strings.Join(quoted, ", ") + "]"

	switch behavior {
	case Replace:
		fmt.Fprintf(w, "$PATH = %s\n", list)
	case Append:
		fmt.Fprintf(w, "$PATH = list($PATH) + %s\n", list)
	default:
		fmt.Fprintf(w, "$PATH = %s + list($PATH)\n", list)
	}

	return nil
}

func (Xonsh) Source(w *strings.Builder, path string) error {
	if strings.HasSuffix(path, ".sh") {
		fmt.Fprintf(w, "source-bash %s\n", pyQuote(path))
	} else {
		fmt.Fprintf(w, "source %s\n", pyQuote(path))
	}

	return nil
}

// psQuote single quotes s for PowerShell, doubling embedded quotes.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

type PowerShell struct{}

func (PowerShell) Name() string              { return "powershell" }
func (PowerShell) Extension() string         { return "ps1" }
func (PowerShell) CanSource(ext string) bool { return ext == "ps1" }

func (PowerShell) SetEnv(w *strings.Builder, name, value string) error {
	if err := checkName(name); err != nil {
		return err
	}

	fmt.Fprintf(w, "${Env:%s} = %s\n", name, psQuote(value))
	return nil
}

func (PowerShell) SetPath(w *strings.Builder, paths []string, behavior PathBehavior, platform config.Platform) error {
	sep := pathSeparator(platform)
	joined := psQuote(strings.Join(paths, sep))

	switch behavior {
	case Replace:
		fmt.Fprintf(w, "${Env:PATH} = %s\n", joined)
	case Append:
		fmt.Fprintf(w, "${Env:PATH} = ${Env:PATH} + '%s' + %s\n", sep, joined)
	default:
		fmt.Fprintf(w, "${Env:PATH} = %s + '%s' + ${Env:PATH}\n", joined, sep)
	}

	return nil
}

func (PowerShell) Source(w *strings.Builder, path string) error {
	fmt.Fprintf(w, ". %s\n", psQuote(path))
	return nil
}

type CmdExe struct{}

func (CmdExe) Name() string              { return "cmd" }
func (CmdExe) Extension() string         { return "bat" }
func (CmdExe) CanSource(ext string) bool { return ext == "bat" }

func cmdCheck(s string) error {
	if strings.ContainsAny(s, "\"\r\n") {
		return errors.Errorf("cmd.exe cannot represent %q", s)
	}

	return nil
}

func (CmdExe) SetEnv(w *strings.Builder, name, value string) error {
	if err := checkName(name); err != nil {
		return err
	}

	if err := cmdCheck(value); err != nil {
		return err
	}

	fmt.Fprintf(w, "@SET \"%s=%s\"\n", name, strings.ReplaceAll(value, "%", "%%"))

	return nil
}

func (CmdExe) SetPath(w *strings.Builder, paths []string, behavior PathBehavior, platform config.Platform) error {
	joined := strings.Join(paths, ";")
	if err := cmdCheck(joined); err != nil {
		return err
	}

	switch behavior {
	case Replace:
		fmt.Fprintf(w, "@SET \"PATH=%s\"\n", joined)
	case Append:
		fmt.Fprintf(w, "@SET \"PATH=%%PATH%%;%s\"\n", joined)
	default:
		fmt.Fprintf(w, "@SET \"PATH=%s;%%PATH%%\"\n", joined)
	}

	return nil
}

func (CmdExe) Source(w *strings.Builder, path string) error {
	if err := cmdCheck(path); err != nil {
		return err
	}

	fmt.Fprintf(w, "@CALL \"%s\"\n", path)

	return nil
}

// nuQuote uses JSON string syntax, which nushell double quoted strings
// accept.
func nuQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

type NuShell struct{}

func (NuShell) Name() string              { return "nushell" }
func (NuShell) Extension() string         { return "nu" }
func (NuShell) CanSource(ext string) bool { return ext == "nu" }

func (NuShell) SetEnv(w *strings.Builder, name, value string) error {
	if err := checkName(name); err != nil {
		return err
	}

	fmt.Fprintf(w, "$env.%s = %s\n", name, nuQuote(value))
	return nil
}

func (NuShell) SetPath(w *strings.Builder, paths []string, behavior PathBehavior, platform config.Platform) error {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = nuQuote(p)
	}

	list := "[" + strings.Join(quoted, ", ") + "]"

	switch behavior {
	case Replace:
		fmt.Fprintf(w, "$env.PATH = %s\n", list)
	case Append:
		fmt.Fprintf(w, "$env.PATH = ($env.PATH | append %s)\n", list)
	default:
		fmt.Fprintf(w, "$env.PATH = ($env.PATH | prepend %s)\n", list)
	}

	return nil
}

func (NuShell) Source(w *strings.Builder, path string) error {
	fmt.Fprintf(w, "source-env %s\n", nuQuote(path))
	return nil
}
