// Package loader discovers and resolves named fan-control configurations
// from a list of allow-listed directories, deserializing them through
// internal/nbfc.
package loader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/ectherm/fancontrold/internal/nbfc"
)

// extensions lists the supported formats in try-order: xml before json,
// matching the original loader's phf_ordered_map entry order.
var extensions = []string{"xml", "json"}

type parser func([]byte) (*nbfc.FanControlConfig, error)

var parsers = map[string]parser{
	"xml":  nbfc.ParseXML,
	"json": nbfc.ParseJSON,
}

// InvalidNameError reports a config name containing a path separator or
// a dot, which would otherwise allow escaping the allow-listed directories.
type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string { return "invalid config name: " + e.Name }

// NotFoundError reports that no allowed directory contains a file matching
// the requested name under any supported extension.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string { return "config not found: " + e.Name }

// Loader resolves a config name against an ordered list of directories.
// Directories earlier in the list take priority; when built with
// followDirectories set, sub-directories of each allowed directory are
// transitively added (post-order, so a sub-directory precedes its parent).
type Loader struct {
	dirs              []string
	followDirectories bool
}

// New builds a Loader over the given allow-listed directories, in priority
// order.
func New(dirs []string, followDirectories bool) *Loader {
	l := &Loader{dirs: append([]string(nil), dirs...), followDirectories: followDirectories}
	if followDirectories {
		l.dirs = expandDirectories(l.dirs)
	}
	return l
}

// expandDirectories transitively adds sub-directories in post-order,
// idempotently (a directory already present is not added again).
func expandDirectories(dirs []string) []string {
	seen := make(map[string]bool, len(dirs))
	var out []string
	var walk func(dir string)
	walk = func(dir string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			if e.IsDir() {
				walk(filepath.Join(dir, e.Name()))
			}
		}
		if !seen[dir] {
			seen[dir] = true
			out = append(out, dir)
		}
	}
	for _, d := range dirs {
		walk(d)
	}
	return out
}

// Resolve locates the on-disk path and format for a config name without
// reading or parsing it. It rejects names containing "." or "/".
func (l *Loader) Resolve(name string) (path, format string, err error) {
	if strings.ContainsAny(name, "./") {
		return "", "", &InvalidNameError{Name: name}
	}

	for _, dir := range l.dirs {
		for _, ext := range extensions {
			candidate := filepath.Join(dir, name+"."+ext)
			info, err := os.Stat(candidate)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			return candidate, ext, nil
		}
	}
	return "", "", &NotFoundError{Name: name}
}

// Load resolves and parses a config by name, without validating it.
func (l *Loader) Load(name string) (*nbfc.FanControlConfig, error) {
	path, format, err := l.Resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	parse, ok := parsers[format]
	if !ok {
		return nil, errors.New("loader: no parser registered for extension " + format)
	}
	return parse(data)
}

// TestLoad resolves, parses and validates a config by name. The control
// loop uses it for every hot-swap, so a config that parses but fails
// validation is never installed.
func (l *Loader) TestLoad(name string) (*nbfc.FanControlConfig, error) {
	cfg, err := l.Load(name)
	if err != nil {
		return nil, err
	}
	if err := nbfc.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Names enumerates the distinct config names (file stems) visible across
// every allowed directory, across both supported extensions.
func (l *Loader) Names() ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	var anyDir bool
	for _, dir := range l.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		anyDir = true
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := strings.TrimPrefix(filepath.Ext(e.Name()), ".")
			if _, ok := parsers[ext]; !ok {
				continue
			}
			stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
			if !seen[stem] {
				seen[stem] = true
				names = append(names, stem)
			}
		}
	}
	if !anyDir {
		return nil, errors.New("loader: no allowed directory could be read")
	}
	return names, nil
}
