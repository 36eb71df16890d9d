package trees

import (
	"fmt"
	"io"
	"strings"
)

// Root returns the root entity
func (ct *ChangeTree) Root() (Entity, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if len(ct.nodes) == 0 {
		return Entity{}, ErrNotInitialized
	}
	return ct.nodes[0].view(), nil
}

// RootPath returns the normalized root path, or "" before Initialize
func (ct *ChangeTree) RootPath() string {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if len(ct.nodes) == 0 {
		return ""
	}
	return ct.nodes[0].path
}

// Len returns the number of entities, root included
func (ct *ChangeTree) Len() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.nodes)
}

// Get returns the entity with the given id
func (ct *ChangeTree) Get(id EntityID) (Entity, bool) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if int(id) >= len(ct.nodes) {
		return Entity{}, false
	}
	return ct.nodes[id].view(), true
}

// Lookup finds the entity for p without creating anything
func (ct *ChangeTree) Lookup(p string) (Entity, bool) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if len(ct.nodes) == 0 {
		return Entity{}, false
	}
	id, ok := ct.index.Lookup(p)
	if !ok {
		return Entity{}, false
	}
	return ct.nodes[id].view(), true
}

// Children returns the children of id in the order they were first observed
func (ct *ChangeTree) Children(id EntityID) []Entity {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if int(id) >= len(ct.nodes) {
		return nil
	}
	return ct.viewsLocked(ct.nodes[id].children)
}

// Under returns the entity for p and every known entity below it, ordered
// by case-folded path.
func (ct *ChangeTree) Under(p string) ([]Entity, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if len(ct.nodes) == 0 {
		return nil, ErrNotInitialized
	}
	cleaned, err := ct.resolveLocked(p)
	if err != nil {
		return nil, err
	}

	key := foldKey(cleaned)
	var ids []EntityID
	if id, ok := ct.index.lookupKey(key); ok {
		ids = append(ids, id)
	}
	sep := separatorFor(ct.rootKey)
	prefix := key
	if !strings.HasSuffix(prefix, sep) {
		prefix += sep
	}
	for _, id := range ct.index.PrefixLookup(prefix) {
		if ct.nodes[id].key != key {
			ids = append(ids, id)
		}
	}
	return ct.viewsLocked(ids), nil
}

// Entities returns every entity in depth-first order, children in the
// order they were first observed.
func (ct *ChangeTree) Entities() []Entity {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if len(ct.nodes) == 0 {
		return nil
	}
	out := make([]Entity, 0, len(ct.nodes))
	ct.collectLocked(ct.nodes[0], &out)
	return out
}

func (ct *ChangeTree) collectLocked(n *node, out *[]Entity) {
	*out = append(*out, n.view())
	for _, child := range n.children {
		ct.collectLocked(ct.nodes[child], out)
	}
}

// Walk calls fn for every entity in depth-first order until fn returns
// false. fn runs on a snapshot, outside the tree lock.
func (ct *ChangeTree) Walk(fn func(e Entity) bool) {
	for _, e := range ct.Entities() {
		if !fn(e) {
			return
		}
	}
}

// WithStatus returns the entities currently carrying status s, by id
func (ct *ChangeTree) WithStatus(s Status) []Entity {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.viewsLocked(ct.bitmaps.ids(s))
}

// ChangedCount returns how many entities carry any status but Unmarked
func (ct *ChangeTree) ChangedCount() uint64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.bitmaps.changed().GetCardinality()
}

// CountByStatus returns the number of entities per status
func (ct *ChangeTree) CountByStatus() map[Status]uint64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.bitmaps.counts()
}

// Metrics returns a copy of the tree metrics
func (ct *ChangeTree) Metrics() TreeMetrics {
	return ct.metrics.Snapshot()
}

// Validate checks the arena, the path index and the status bitmaps agree
func (ct *ChangeTree) Validate() []error {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	errs := ct.index.Validate()
	if got := ct.index.Len(); got != len(ct.nodes) {
		errs = append(errs, fmt.Errorf("index_size_mismatch: index has %d entries, tree %d", got, len(ct.nodes)))
	}

	var total uint64
	for _, c := range ct.bitmaps.counts() {
		total += c
	}
	if total != uint64(len(ct.nodes)) {
		errs = append(errs, fmt.Errorf("bitmap_size_mismatch: bitmaps hold %d ids, tree %d", total, len(ct.nodes)))
	}

	for _, n := range ct.nodes {
		if id, ok := ct.index.lookupKey(n.key); !ok || id != n.id {
			errs = append(errs, fmt.Errorf("index_entry_mismatch: %s", n.path))
		}
		if !ct.bitmaps.byStatus[n.status].Contains(uint32(n.id)) {
			errs = append(errs, fmt.Errorf("bitmap_entry_mismatch: %s is not in the %s bitmap", n.path, n.status))
		}
		if n.parent == NoEntity {
			continue
		}
		parent := ct.nodes[n.parent]
		if parent.key != foldKey(parentPath(n.path)) {
			errs = append(errs, fmt.Errorf("parent_mismatch: %s is attached below %s", n.path, parent.path))
		}
	}
	return errs
}

// Format writes an indented rendering of the tree, one entity per line,
// prefixed with its status badge.
func (ct *ChangeTree) Format(w io.Writer) error {
	return FormatEntities(w, ct.Entities())
}

// FormatEntities renders entities produced by Entities (depth-first order)
func FormatEntities(w io.Writer, entities []Entity) error {
	for _, e := range entities {
		if _, err := fmt.Fprintf(w, "%s%s %s\n", strings.Repeat("  ", e.Depth), e.Status.Badge(), e.Name); err != nil {
			return err
		}
	}
	return nil
}

// String renders the tree
func (ct *ChangeTree) String() string {
	var sb strings.Builder
	_ = ct.Format(&sb)
	return sb.String()
}
