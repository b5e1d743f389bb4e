// Package manifest handles flint.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"flint/script"
)

// Manifest represents a flint.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Scripts Scripts `toml:"scripts"`
	API     API     `toml:"api"`

	// Dir is the directory containing the flint.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata. Title and Parent mirror the fields of
// the project.json resource marker; the manifest values win when both are
// present.
type Project struct {
	Name   string `toml:"name"`
	Title  string `toml:"title"`
	Parent string `toml:"parent"`
}

// Scripts configures the embedded-script key allow-list.
type Scripts struct {
	ExtraKeys []string `toml:"extra-keys"`
}

// API configures the scripting API database.
type API struct {
	Version  string `toml:"version"`
	Snapshot string `toml:"snapshot"`
}

// Load parses a flint.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "flint.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.API.Version == "" {
		m.API.Version = "8.1"
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a flint.toml file, then loads
// and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "flint.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// ScriptKeys returns the script-key allow-list: the fixed keys followed by
// the manifest's extra keys, deduplicated. A nil receiver yields the fixed
// list, so callers need not check whether a manifest was found.
func (m *Manifest) ScriptKeys() []string {
	keys := append([]string(nil), script.Keys...)
	if m == nil {
		return keys
	}

	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}
	for _, k := range m.Scripts.ExtraKeys {
		if k != "" && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	return keys
}

// SnapshotPath returns the absolute path of the configured API snapshot,
// or "" when none is configured.
func (m *Manifest) SnapshotPath() string {
	if m == nil || m.API.Snapshot == "" {
		return ""
	}
	if filepath.IsAbs(m.API.Snapshot) {
		return m.API.Snapshot
	}
	return filepath.Join(m.Dir, m.API.Snapshot)
}
