package shell

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
	"github.com/pkg/errors"
)

// EnvVar is a variable set on activation.
type EnvVar struct {
	Name  string
	Value string
}

// Activator holds everything needed to activate one prefix in one shell.
type Activator struct {
	Prefix   string
	Shell    Shell
	Platform config.Platform

	// Paths are prepended to PATH.
	Paths []string

	// Scripts from etc/conda/activate.d, sourced last.
	Scripts []string

	// EnvVars in the order they are set.
	EnvVars []EnvVar
}

// ActivationVariables describe the environment activation starts from.
type ActivationVariables struct {
	// Path is the PATH of the calling environment. When nil the script
	// reads PATH from the shell at run time.
	Path []string

	Behavior PathBehavior
}

// Script is the result of an activation.
type Script struct {
	Shell Shell

	contents strings.Builder
}

func (s *Script) Contents() string {
	return s.contents.String()
}

// prefixPaths lists the directories of a prefix that hold executables.
func prefixPaths(prefix string, platform config.Platform) []string {
	if !platform.IsWindows() {
		return []string{joinFor(platform, prefix, "bin")}
	}

	return []string{
		prefix,
		joinFor(platform, prefix, "Library", "mingw-w64", "bin"),
		joinFor(platform, prefix, "Library", "usr", "bin"),
		joinFor(platform, prefix, "Library", "bin"),
		joinFor(platform, prefix, "Scripts"),
		joinFor(platform, prefix, "bin"),
	}
}

// joinFor joins path elements with the separator of the target platform,
// which may differ from the host's.
func joinFor(platform config.Platform, base string, elem ...string) string {
	sep := "/"
	if platform.IsWindows() {
		sep = `\`
	}

	return strings.TrimRight(base, `/\`) + sep + strings.Join(elem, sep)
}

// FromPath collects the activation data of the prefix at prefix.
func FromPath(prefix string, sh Shell, platform config.Platform) (*Activator, error) {
	a := &Activator{
		Prefix:   prefix,
		Shell:    sh,
		Platform: platform,
		Paths:    prefixPaths(prefix, platform),
	}

	scripts, err := activationScripts(prefix, sh, platform)
	if err != nil {
		return nil, err
	}

	a.Scripts = scripts

	vars, err := envVars(prefix)
	if err != nil {
		return nil, err
	}

	a.EnvVars = vars

	return a, nil
}

func activationScripts(prefix string, sh Shell, platform config.Platform) ([]string, error) {
	dir := filepath.Join(prefix, "etc", "conda", "activate.d")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, errors.Wrapf(err, "reading %s", dir)
	}

	var scripts []string

	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}

		ext := strings.TrimPrefix(filepath.Ext(ent.Name()), ".")
		if !sh.CanSource(ext) {
			continue
		}

		scripts = append(scripts, joinFor(platform, prefix, "etc", "conda", "activate.d", ent.Name()))
	}

	sort.Strings(scripts)

	return scripts, nil
}

type orderedVars struct {
	vars  []EnvVar
	index map[string]int
}

func (o *orderedVars) set(name, value string) {
	if o.index == nil {
		o.index = map[string]int{}
	}

	if i, ok := o.index[name]; ok {
		o.vars[i].Value = value
		return
	}

	o.index[name] = len(o.vars)
	o.vars = append(o.vars, EnvVar{Name: name, Value: value})
}

// decodeObject reads a JSON object of scalar values keeping the order of
// its keys.
func decodeObject(data []byte, path string, into *orderedVars) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := readObject(dec, into); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}

	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if d, ok := tok.(json.Delim); !ok || d != want {
		return errors.Errorf("expected a JSON object, found %v", tok)
	}

	return nil
}

func readObject(dec *json.Decoder, into *orderedVars) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}

		name, _ := tok.(string)

		tok, err = dec.Token()
		if err != nil {
			return err
		}

		switch v := tok.(type) {
		case string:
			into.set(name, v)
		case json.Number:
			into.set(name, v.String())
		case bool:
			into.set(name, strconv.FormatBool(v))
		default:
			return errors.Errorf("value of %s must be a string, number or boolean", name)
		}
	}

	return expectDelim(dec, '}')
}

// readStateVars reads the env_vars object of a conda-meta/state file,
// skipping every other key.
func readStateVars(data []byte, path string, into *orderedVars) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	err := func() error {
		if err := expectDelim(dec, '{'); err != nil {
			return err
		}

		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return err
			}

			if key, _ := tok.(string); key == "env_vars" {
				if err := readObject(dec, into); err != nil {
					return err
				}

				continue
			}

			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return err
			}
		}

		return expectDelim(dec, '}')
	}()

	if err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}

	return nil
}

// envVars merges etc/conda/env_vars.d/*.json in file name order, then the
// env_vars of conda-meta/state on top.
func envVars(prefix string) ([]EnvVar, error) {
	var vars orderedVars

	dir := filepath.Join(prefix, "etc", "conda", "env_vars.d")

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}

	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", f)
		}

		if err := decodeObject(data, f, &vars); err != nil {
			return nil, err
		}
	}

	statePath := filepath.Join(prefix, "conda-meta", "state")

	data, err := os.ReadFile(statePath)
	if err == nil {
		if err := readStateVars(data, statePath, &vars); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "reading %s", statePath)
	}

	return vars.vars, nil
}

// Activation renders the activation script: PATH first, then
// CONDA_SHLVL and CONDA_PREFIX, the environment variables, and finally the
// activate.d scripts.
func (a *Activator) Activation(av ActivationVariables) (*Script, error) {
	s := &Script{Shell: a.Shell}
	w := &s.contents

	var err error

	if av.Path != nil {
		var paths []string

		switch av.Behavior {
		case Append:
			paths = append(append(paths, av.Path...), a.Paths...)
		case Replace:
			paths = a.Paths
		default:
			paths = append(append(paths, a.Paths...), av.Path...)
		}

		err = a.Shell.SetPath(w, paths, Replace, a.Platform)
	} else {
		err = a.Shell.SetPath(w, a.Paths, av.Behavior, a.Platform)
	}

	if err != nil {
		return nil, err
	}

	if err := a.Shell.SetEnv(w, "CONDA_SHLVL", "1"); err != nil {
		return nil, err
	}

	if err := a.Shell.SetEnv(w, "CONDA_PREFIX", a.Prefix); err != nil {
		return nil, err
	}

	for _, ev := range a.EnvVars {
		if err := a.Shell.SetEnv(w, ev.Name, ev.Value); err != nil {
			return nil, errors.Wrapf(err, "setting %s", ev.Name)
		}
	}

	for _, script := range a.Scripts {
		if err := a.Shell.Source(w, script); err != nil {
			return nil, err
		}
	}

	return s, nil
}
