// Package apidb loads and indexes the scripting API definitions used for
// completion and hover. A default definition set is compiled into the
// binary; additional definition directories can be merged in at load time.
package apidb

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("flint.apidb")

//go:embed defs/*.json
var defaultDefs embed.FS

// Param describes one function parameter.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Default     string `json:"default"`
}

// Return describes a function's return value.
type Return struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Function is a single scripting API function.
type Function struct {
	Name            string   `json:"name"`
	Signature       string   `json:"signature"`
	Params          []Param  `json:"params"`
	Returns         Return   `json:"returns"`
	Description     string   `json:"description"`
	LongDescription string   `json:"long_description"`
	Scope           []string `json:"scope"`
	Deprecated      bool     `json:"deprecated"`
	Since           string   `json:"since"`
	DocsURL         string   `json:"docs_url"`

	// Module and FullName are filled in at load time.
	Module   string `json:"-"`
	FullName string `json:"-"`
}

// moduleFile is the layout of one definition file.
type moduleFile struct {
	Module    string     `json:"module"`
	Functions []Function `json:"functions"`
}

// DB indexes API functions by full name and by module.
type DB struct {
	Version string

	byName   map[string]*Function
	byModule map[string][]*Function
}

// Load builds a DB from the embedded default definitions plus any extra
// definition directories, later directories overriding earlier entries of
// the same full name.
func Load(version string, extraDirs ...string) (*DB, error) {
	db := &DB{
		Version:  version,
		byName:   make(map[string]*Function),
		byModule: make(map[string][]*Function),
	}

	if err := db.loadFS(defaultDefs, "defs"); err != nil {
		return nil, err
	}
	for _, dir := range extraDirs {
		if err := db.loadFS(os.DirFS(dir), "."); err != nil {
			return nil, fmt.Errorf("apidb: load %s: %w", dir, err)
		}
	}

	log.Infof("api database loaded: %d functions in %d modules", len(db.byName), len(db.byModule))
	return db, nil
}

func (db *DB) loadFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("apidb: read definitions: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(root, entry.Name()))
		if err != nil {
			return fmt.Errorf("apidb: read %s: %w", entry.Name(), err)
		}

		var mf moduleFile
		if err := json.Unmarshal(data, &mf); err != nil {
			return fmt.Errorf("apidb: parse %s: %w", entry.Name(), err)
		}
		if mf.Module == "" {
			log.Warningf("definition file %s has no module name, skipped", entry.Name())
			continue
		}

		for i := range mf.Functions {
			fn := mf.Functions[i]
			fn.Module = mf.Module
			fn.FullName = mf.Module + "." + fn.Name
			db.add(&fn)
		}
	}
	return nil
}

func (db *DB) add(fn *Function) {
	if old, ok := db.byName[fn.FullName]; ok {
		// Override: drop the old entry from its module list.
		funcs := db.byModule[old.Module]
		for i, f := range funcs {
			if f == old {
				db.byModule[old.Module] = append(funcs[:i], funcs[i+1:]...)
				break
			}
		}
	}
	db.byName[fn.FullName] = fn
	db.byModule[fn.Module] = append(db.byModule[fn.Module], fn)
}

// Lookup finds a function by its full dotted name.
func (db *DB) Lookup(fullName string) (*Function, bool) {
	fn, ok := db.byName[fullName]
	return fn, ok
}

// ModuleFunctions returns the functions of one module, sorted by name.
func (db *DB) ModuleFunctions(module string) []*Function {
	funcs := append([]*Function(nil), db.byModule[module]...)
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].Name < funcs[j].Name })
	return funcs
}

// Modules returns all module names, sorted.
func (db *DB) Modules() []string {
	out := make([]string, 0, len(db.byModule))
	for name := range db.byModule {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of indexed functions.
func (db *DB) Len() int {
	return len(db.byName)
}

// Complete returns all functions whose full name starts with prefix,
// sorted by full name. The prefix is matched against dotted names, so
// "system.ta" matches every system.tag function.
func (db *DB) Complete(prefix string) []*Function {
	if prefix == "" {
		return nil
	}
	var out []*Function
	for name, fn := range db.byName {
		if strings.HasPrefix(name, prefix) {
			out = append(out, fn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out
}
