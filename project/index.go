// Package project scans a Flint project directory tree and builds an index
// of every embedded script, for workspace symbols, go-to-definition and
// cross-file completions. Resource JSON files are scanned line by line with
// the script locator rather than parsed, so indexing never depends on a
// document being well-formed JSON beyond the lines that hold scripts.
package project

import (
	"sort"
	"strings"
	"time"
)

// Location is a single script location within a project.
type Location struct {
	FilePath     string `cbor:"1,keyasint"`           // absolute path of the containing file
	Key          string `cbor:"2,keyasint"`           // JSON key, or script.FileKey for whole files
	Line         int    `cbor:"3,keyasint"`           // 1-based line number
	ModulePath   string `cbor:"4,keyasint"`           // logical path, e.g. "site.library.utils"
	ResourceType string `cbor:"5,keyasint"`           // "script-library", "view", ...
	ContextName  string `cbor:"6,keyasint,omitempty"` // nearest component/tag name
}

// Index holds every script found in a project and its parents.
type Index struct {
	RootPath    string     `cbor:"1,keyasint"`
	Scripts     []Location `cbor:"2,keyasint"`
	ParentRoots []string   `cbor:"3,keyasint,omitempty"`
	LastUpdated time.Time  `cbor:"4,keyasint"`
}

// ScriptCount returns the number of indexed scripts.
func (ix *Index) ScriptCount() int {
	return len(ix.Scripts)
}

// ByType groups scripts by resource type.
func (ix *Index) ByType() map[string][]Location {
	out := make(map[string][]Location)
	for _, loc := range ix.Scripts {
		out[loc.ResourceType] = append(out[loc.ResourceType], loc)
	}
	return out
}

// InFile returns all scripts located in the given file.
func (ix *Index) InFile(path string) []Location {
	var out []Location
	for _, loc := range ix.Scripts {
		if loc.FilePath == path {
			out = append(out, loc)
		}
	}
	return out
}

// FindModulePath finds a script by its exact logical module path.
func (ix *Index) FindModulePath(modulePath string) (Location, bool) {
	for _, loc := range ix.Scripts {
		if loc.ModulePath == modulePath {
			return loc, true
		}
	}
	return Location{}, false
}

// SearchModulePaths returns all scripts whose module path starts with
// prefix, sorted by module path.
func (ix *Index) SearchModulePaths(prefix string) []Location {
	var out []Location
	for _, loc := range ix.Scripts {
		if strings.HasPrefix(loc.ModulePath, prefix) {
			out = append(out, loc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModulePath < out[j].ModulePath })
	return out
}
