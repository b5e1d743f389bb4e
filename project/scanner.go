package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tliron/commonlog"

	"flint/script"
)

var log = commonlog.GetLogger("flint.project")

// scriptJSONFiles are the resource file names scanned for embedded scripts.
var scriptJSONFiles = map[string]bool{
	"resource.json": true,
	"view.json":     true,
	"tags.json":     true,
	"data.json":     true,
}

// resourceTypeDirs maps known project subdirectories to resource types.
// Unknown directories index under their own name.
var resourceTypeDirs = map[string]string{
	"script-library": "script-library",
	"views":          "view",
	"named-query":    "named-query",
	"windows":        "window",
}

// Tag exports can be tens of MB and are not useful for script completion;
// JSON files over this size are skipped.
const maxJSONSize = 1 << 20

// projectMarker is the subset of project.json the scanner reads.
type projectMarker struct {
	Title  string `json:"title"`
	Parent string `json:"parent"`
}

// Scanner scans a project directory to build a script index.
type Scanner struct {
	rootPath string
	keys     []string
}

// NewScanner creates a scanner for the project rooted at rootPath. keys is
// the script-key allow-list; nil means the default list.
func NewScanner(rootPath string, keys []string) *Scanner {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		abs = rootPath
	}
	return &Scanner{rootPath: abs, keys: keys}
}

// IsProject reports whether the root directory carries a project.json
// marker.
func (s *Scanner) IsProject() bool {
	info, err := os.Stat(filepath.Join(s.rootPath, "project.json"))
	return err == nil && info.Mode().IsRegular()
}

// Scan walks the project and returns a complete index, including scripts
// inherited from parent projects. Never fails: unreadable files are
// skipped and logged at debug level.
func (s *Scanner) Scan() *Index {
	index := &Index{RootPath: s.rootPath}

	if !s.IsProject() {
		log.Warningf("no project.json found at %s", s.rootPath)
		return index
	}

	log.Infof("scanning project at %s", s.rootPath)
	s.scanProjectDir(index)

	// Merge parent scripts, child overrides parent by module path. The
	// root itself seeds the visited set so a cycle cannot make a project
	// its own ancestor.
	parents := s.collectParentScripts(map[string]bool{s.rootPath: true})
	if len(parents) > 0 {
		have := make(map[string]bool, len(index.Scripts))
		for _, loc := range index.Scripts {
			have[loc.ModulePath] = true
		}
		for _, p := range parents {
			index.ParentRoots = append(index.ParentRoots, p.root)
			for _, loc := range p.scripts {
				if !have[loc.ModulePath] {
					index.Scripts = append(index.Scripts, loc)
					have[loc.ModulePath] = true
				}
			}
		}
	}

	index.LastUpdated = time.Now()
	log.Infof("scan complete: %d scripts in %d resource types",
		index.ScriptCount(), len(index.ByType()))
	return index
}

func (s *Scanner) scanProjectDir(index *Index) {
	entries, err := os.ReadDir(s.rootPath)
	if err != nil {
		log.Debugf("cannot read %s: %s", s.rootPath, err.Error())
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			resourceType, ok := resourceTypeDirs[name]
			if !ok {
				resourceType = name
			}
			base := filepath.Join(s.rootPath, name)
			if name == "script-library" {
				s.scanScriptLibrary(base, resourceType, index)
			} else {
				s.scanResourceDir(base, resourceType, index)
			}
		} else if scriptJSONFiles[name] {
			// Flattened export: resource files at top level.
			s.scanJSONFile(filepath.Join(s.rootPath, name), "unknown", "", index)
		}
	}
}

// scanScriptLibrary indexes whole-file scripts plus any resource JSON in
// the library tree.
func (s *Scanner) scanScriptLibrary(base, resourceType string, index *Index) {
	filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		switch {
		case strings.HasSuffix(name, ".py"):
			index.Scripts = append(index.Scripts, Location{
				FilePath:     path,
				Key:          script.FileKey,
				Line:         1,
				ModulePath:   modulePath(path, base),
				ResourceType: resourceType,
			})
		case scriptJSONFiles[name]:
			s.scanJSONFile(path, resourceType, modulePath(path, base), index)
		}
		return nil
	})
}

func (s *Scanner) scanResourceDir(base, resourceType string, index *Index) {
	filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		if scriptJSONFiles[name] || strings.HasSuffix(name, ".json") {
			s.scanJSONFile(path, resourceType, modulePath(path, base), index)
		}
		return nil
	})
}

// scanJSONFile scans a single resource file line by line with the locator.
// The nearest preceding "name" value becomes the context name for each hit.
func (s *Scanner) scanJSONFile(path, resourceType, modPath string, index *Index) {
	info, err := os.Stat(path)
	if err != nil {
		log.Debugf("cannot stat %s: %s", path, err.Error())
		return
	}
	if info.Size() > maxJSONSize {
		log.Debugf("skipping large file (%d bytes): %s", info.Size(), path)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Debugf("cannot read %s: %s", path, err.Error())
		return
	}

	lines := strings.Split(string(data), "\n")
	context := ""
	byLine := make(map[int][]script.Ref)
	for _, ref := range script.Scan(lines, s.keys) {
		byLine[ref.Line] = append(byLine[ref.Line], ref)
	}

	for n, line := range lines {
		if name, ok := script.KeyValue(line, "name"); ok && name != "" {
			context = name
		}
		for _, ref := range byLine[n+1] {
			index.Scripts = append(index.Scripts, Location{
				FilePath:     path,
				Key:          ref.Key,
				Line:         ref.Line,
				ModulePath:   modPath,
				ResourceType: resourceType,
				ContextName:  context,
			})
		}
	}
}

type parentScripts struct {
	root    string
	scripts []Location
}

// collectParentScripts recursively gathers scripts from parent projects,
// deepest ancestor first so closer parents override. visited guards
// against cycles in the parent chain.
func (s *Scanner) collectParentScripts(visited map[string]bool) []parentScripts {
	marker := s.readMarker()
	if marker == nil || marker.Parent == "" {
		return nil
	}

	parentPath := s.resolveParentPath(marker.Parent)
	if parentPath == "" {
		log.Warningf("parent project %q not found for %s", marker.Parent, s.rootPath)
		return nil
	}
	if visited[parentPath] {
		log.Warningf("cycle in project hierarchy at %s", parentPath)
		return nil
	}
	visited[parentPath] = true

	parent := NewScanner(parentPath, s.keys)
	index := &Index{RootPath: parentPath}
	if parent.IsProject() {
		parent.scanProjectDir(index)
	}

	// Grandparents first, then this parent, so the closest override wins.
	out := parent.collectParentScripts(visited)
	return append(out, parentScripts{root: parentPath, scripts: index.Scripts})
}

func (s *Scanner) readMarker() *projectMarker {
	data, err := os.ReadFile(filepath.Join(s.rootPath, "project.json"))
	if err != nil {
		return nil
	}
	var marker projectMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		log.Debugf("invalid project.json at %s: %s", s.rootPath, err.Error())
		return nil
	}
	return &marker
}

// resolveParentPath finds the parent project directory by name: first a
// sibling whose project.json title matches, then a sibling directory of
// the same name.
func (s *Scanner) resolveParentPath(parentName string) string {
	siblingsDir := filepath.Dir(s.rootPath)
	entries, err := os.ReadDir(siblingsDir)
	if err != nil {
		return ""
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(siblingsDir, entry.Name())
		if candidate == s.rootPath {
			continue
		}
		data, err := os.ReadFile(filepath.Join(candidate, "project.json"))
		if err != nil {
			continue
		}
		var marker projectMarker
		if json.Unmarshal(data, &marker) == nil && marker.Title == parentName {
			return candidate
		}
	}

	candidate := filepath.Join(siblingsDir, parentName)
	if info, err := os.Stat(candidate); err == nil && info.IsDir() && candidate != s.rootPath {
		return candidate
	}
	return ""
}

// modulePath computes the logical module path for a file: the directory
// path relative to base, with each "-" segment split apart and the parts
// joined by dots. script-library/site-library/utils/code.py becomes
// "site.library.utils".
func modulePath(path, base string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	rel, err := filepath.Rel(base, path)
	if err != nil {
		return stem
	}

	dir := filepath.Dir(rel)
	if dir == "." {
		return stem
	}

	var parts []string
	for _, part := range strings.Split(dir, string(filepath.Separator)) {
		parts = append(parts, strings.Split(part, "-")...)
	}
	return strings.Join(parts, ".")
}
