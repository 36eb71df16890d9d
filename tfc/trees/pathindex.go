package trees

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/armon/go-radix"
)

// PathIndexStats tracks usage of the path index
type PathIndexStats struct {
	TotalEntries  int64
	PathLookups   int64
	LookupMisses  int64
	PrefixLookups int64
	Insertions    int64
	Resets        int64
}

// PathIndex maps case-folded absolute paths to entity ids using a patricia
// tree, giving O(k) lookups where k is the length of the path.
type PathIndex struct {
	tree    *radix.Tree         // folded path -> EntityID
	entries map[string]EntityID // direct mapping for verification
	stats   PathIndexStats
	mu      sync.RWMutex
	logger  *slog.Logger
}

// NewPathIndex creates an empty path index
func NewPathIndex() *PathIndex {
	return &PathIndex{
		tree:    radix.New(),
		entries: make(map[string]EntityID),
		logger:  slog.Default(),
	}
}

// Insert registers path -> id. It fails with ErrDuplicateKey when the
// normalized path is already present.
func (idx *PathIndex) Insert(p string, id EntityID) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}
	return idx.insertKey(foldKey(cleaned), id)
}

func (idx *PathIndex) insertKey(key string, id EntityID) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing, found := idx.tree.Get(key); found {
		return fmt.Errorf("%w: %s already maps to entity %d", ErrDuplicateKey, key, existing.(EntityID))
	}

	idx.tree.Insert(key, id)
	idx.entries[key] = id
	idx.stats.TotalEntries++
	idx.stats.Insertions++

	idx.logger.Debug("Path index insertion completed",
		"path", key,
		"entity", id,
		"total_entries", idx.stats.TotalEntries)

	return nil
}

// Lookup returns the entity registered for p. The path is resolved to its
// absolute form and compared case-insensitively.
func (idx *PathIndex) Lookup(p string) (EntityID, bool) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return NoEntity, false
	}
	return idx.lookupKey(foldKey(cleaned))
}

func (idx *PathIndex) lookupKey(key string) (EntityID, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.stats.PathLookups++
	value, found := idx.tree.Get(key)
	if !found {
		idx.stats.LookupMisses++
		return NoEntity, false
	}
	return value.(EntityID), true
}

// PrefixLookup returns the ids of every entry whose folded path starts with
// the folded prefix, in lexical key order.
func (idx *PathIndex) PrefixLookup(prefix string) []EntityID {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.stats.PrefixLookups++

	var results []EntityID
	idx.tree.WalkPrefix(foldKey(prefix), func(key string, value interface{}) bool {
		results = append(results, value.(EntityID))
		return false
	})
	return results
}

// Len returns the number of indexed paths
func (idx *PathIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}

// Stats returns a copy of the index statistics
func (idx *PathIndex) Stats() PathIndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.stats
}

// Reset removes all entries from the path index
func (idx *PathIndex) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.tree = radix.New()
	idx.entries = make(map[string]EntityID)
	idx.stats.TotalEntries = 0
	idx.stats.Resets++

	idx.logger.Debug("Path index reset")
}

// Validate performs integrity checking between the patricia tree and the
// direct mapping
func (idx *PathIndex) Validate() []error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var errs []error
	count := 0
	idx.tree.Walk(func(key string, value interface{}) bool {
		count++
		id, ok := idx.entries[key]
		if !ok {
			errs = append(errs, fmt.Errorf("mapping_missing: %s is in the patricia tree but not in the direct mapping", key))
		} else if id != value.(EntityID) {
			errs = append(errs, fmt.Errorf("mapping_mismatch: %s maps to %d and %d", key, value.(EntityID), id))
		}
		return false
	})

	if count != len(idx.entries) {
		errs = append(errs, fmt.Errorf("count_mismatch: patricia tree has %d entries, direct mapping %d", count, len(idx.entries)))
	}
	if idx.stats.TotalEntries != int64(count) {
		errs = append(errs, fmt.Errorf("stats_mismatch: statistics report %d entries, found %d", idx.stats.TotalEntries, count))
	}

	if len(errs) > 0 {
		idx.logger.Warn("Path index validation found issues", "error_count", len(errs))
	}
	return errs
}
