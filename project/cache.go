package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// cacheVersion is bumped whenever the cached index layout changes; a cache
// with any other version is discarded.
const cacheVersion = 1

// cbor encoding options with canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("project: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type cachedIndex struct {
	Version int    `cbor:"1,keyasint"`
	Index   *Index `cbor:"2,keyasint"`
}

// SaveCache writes the index to path as canonical CBOR, creating parent
// directories as needed.
func SaveCache(index *Index, path string) error {
	data, err := cborEncMode.Marshal(&cachedIndex{Version: cacheVersion, Index: index})
	if err != nil {
		return fmt.Errorf("project: marshal index cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("project: create cache dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("project: write index cache: %w", err)
	}
	return nil
}

// LoadCache reads a previously saved index. A missing, unreadable, stale
// or corrupt cache returns (nil, false): the caller rescans, it never
// fails.
func LoadCache(path string) (*Index, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var cached cachedIndex
	if err := cbor.Unmarshal(data, &cached); err != nil {
		log.Debugf("discarding corrupt index cache %s: %s", path, err.Error())
		return nil, false
	}
	if cached.Version != cacheVersion || cached.Index == nil {
		log.Debugf("discarding stale index cache %s (version %d)", path, cached.Version)
		return nil, false
	}
	return cached.Index, true
}
