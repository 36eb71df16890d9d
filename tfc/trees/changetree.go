package trees

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// node is the arena record behind an Entity. Parent and children are ids
// into the same arena.
type node struct {
	id       EntityID
	path     string
	key      string
	status   Status
	parent   EntityID
	children []EntityID
	depth    int
}

func (n *node) view() Entity {
	name := baseName(n.path)
	if n.parent == NoEntity {
		name = n.path
	}
	return Entity{
		ID:       n.id,
		Path:     n.path,
		Name:     name,
		Status:   n.status,
		Parent:   n.parent,
		Children: append([]EntityID(nil), n.children...),
		Depth:    n.depth,
	}
}

// ChangeTree aggregates raw filesystem events under one watched root into a
// tree of changed entities. All operations are serialized by one mutex.
type ChangeTree struct {
	mu         sync.Mutex
	fs         afero.Fs
	logger     *slog.Logger
	index      *PathIndex
	nodes      []*node
	bitmaps    *statusBitmaps
	rootKey    string
	dispatcher *Dispatcher
	metrics    *MetricsCollector
}

// TreeOption allows for customization of ChangeTree
type TreeOption func(*ChangeTree)

// WithFs sets the filesystem used to validate roots
func WithFs(fs afero.Fs) TreeOption {
	return func(ct *ChangeTree) {
		ct.fs = fs
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) TreeOption {
	return func(ct *ChangeTree) {
		ct.logger = logger
	}
}

// WithObserver subscribes an observer from construction on
func WithObserver(o Observer) TreeOption {
	return func(ct *ChangeTree) {
		ct.dispatcher.Subscribe(o)
	}
}

// NewChangeTree creates an uninitialized change tree
func NewChangeTree(opts ...TreeOption) *ChangeTree {
	ct := &ChangeTree{
		fs:      afero.NewOsFs(),
		logger:  slog.Default(),
		index:   NewPathIndex(),
		bitmaps: newStatusBitmaps(),
		metrics: NewMetricsCollector(),
	}
	ct.dispatcher = NewDispatcher(ct.logger)

	for _, opt := range opts {
		opt(ct)
	}
	ct.index.logger = ct.logger
	ct.dispatcher.logger = ct.logger

	return ct
}

// Subscribe registers an observer for subsequent notifications
func (ct *ChangeTree) Subscribe(o Observer) {
	ct.dispatcher.Subscribe(o)
}

// Close flushes pending notifications and stops the dispatcher
func (ct *ChangeTree) Close() error {
	ct.dispatcher.Close()
	return nil
}

// Initialize validates rootPath, discards the current tree and creates a
// fresh root. On error the current tree is left untouched.
func (ct *ChangeTree) Initialize(rootPath string) (Entity, error) {
	root, err := ResolveRoot(ct.fs, rootPath)
	if err != nil {
		return Entity{}, err
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	return ct.resetLocked(root, OpInitialize)
}

// Reset drops every entity and recreates the root at the current root path.
func (ct *ChangeTree) Reset() (Entity, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if len(ct.nodes) == 0 {
		return Entity{}, ErrNotInitialized
	}

	root, err := ResolveRoot(ct.fs, ct.nodes[0].path)
	if err != nil {
		return Entity{}, err
	}
	return ct.resetLocked(root, OpReset)
}

func (ct *ChangeTree) resetLocked(root string, op Operation) (Entity, error) {
	start := time.Now()

	ct.index.Reset()
	ct.bitmaps.clear()
	ct.metrics.ResetShape()
	ct.nodes = make([]*node, 0, 64)

	rootNode := &node{
		id:     0,
		path:   root,
		key:    foldKey(root),
		status: Unmarked,
		parent: NoEntity,
	}
	if err := ct.index.insertKey(rootNode.key, rootNode.id); err != nil {
		return Entity{}, err
	}
	ct.nodes = append(ct.nodes, rootNode)
	ct.bitmaps.add(rootNode.id, Unmarked)
	ct.rootKey = rootNode.key

	ct.metrics.IncrementOperation(op.String())
	ct.metrics.Observe(1, 0, time.Since(start))

	ct.logger.Info("Change tree initialized", "root", root, "op", op)

	view := rootNode.view()
	ct.dispatcher.Post(Notification{
		Op:       op,
		Entity:   view,
		Updated:  []Entity{view},
		Attached: []EntityID{rootNode.id},
	})
	return view, nil
}

// mutation collects what one Apply touched, for the notification
type mutation struct {
	updated  []EntityID
	attached []EntityID
	expand   []EntityID
	maxDepth int
}

// Apply folds one raw event into the tree and returns the affected entity.
// A rename is applied as a delete of the old path followed by a create of
// the new path within the same critical section; the created entity is
// returned.
func (ct *ChangeTree) Apply(ev Event) (Entity, error) {
	start := time.Now()

	ct.mu.Lock()
	defer ct.mu.Unlock()

	if len(ct.nodes) == 0 {
		return Entity{}, ErrNotInitialized
	}

	var (
		m      mutation
		target *node
	)

	switch ev.Type {
	case Created, Changed, Deleted:
		p, err := ct.resolveLocked(ev.Path)
		if err != nil {
			return Entity{}, err
		}
		if target, err = ct.getOrCreate(p, ev.Type, &m); err != nil {
			return Entity{}, err
		}

	case Renamed:
		oldPath, err := ct.resolveLocked(ev.OldPath)
		if err != nil {
			return Entity{}, fmt.Errorf("rename source: %w", err)
		}
		newPath, err := ct.resolveLocked(ev.Path)
		if err != nil {
			return Entity{}, fmt.Errorf("rename target: %w", err)
		}
		if _, err := ct.getOrCreate(oldPath, Deleted, &m); err != nil {
			return Entity{}, err
		}
		if target, err = ct.getOrCreate(newPath, Created, &m); err != nil {
			return Entity{}, err
		}

	default:
		return Entity{}, fmt.Errorf("%w: unsupported change type %v for %s", ErrInvalidPath, ev.Type, ev.Path)
	}

	ct.metrics.IncrementOperation("apply." + ev.Type.String())
	ct.metrics.Observe(int64(len(ct.nodes)), m.maxDepth, time.Since(start))

	ct.logger.Debug("Applied event",
		"type", ev.Type,
		"path", ev.Path,
		"old_path", ev.OldPath,
		"entity", target.id,
		"status", target.status,
		"attached", len(m.attached))

	view := target.view()
	ct.dispatcher.Post(Notification{
		Op:       OpApply,
		Event:    ev,
		Entity:   view,
		Updated:  ct.viewsLocked(m.updated),
		Attached: m.attached,
		Expand:   m.expand,
	})
	return view, nil
}

// resolveLocked cleans p and checks it lies under the root
func (ct *ChangeTree) resolveLocked(p string) (string, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	if !within(ct.rootKey, foldKey(cleaned)) {
		return "", fmt.Errorf("%w: %s is outside the watched root %s", ErrInvalidPath, cleaned, ct.nodes[0].path)
	}
	return cleaned, nil
}

// getOrCreate finds or synthesizes the entity for a cleaned path under the
// root and applies changeType to it.
func (ct *ChangeTree) getOrCreate(p string, changeType ChangeType, m *mutation) (*node, error) {
	key := foldKey(p)
	if key == ct.rootKey {
		return ct.nodes[0], nil
	}

	var n *node
	if id, ok := ct.index.lookupKey(key); ok {
		n = ct.nodes[id]
	} else {
		// Discovering an ancestor is not a content change of its own.
		parent, err := ct.getOrCreate(parentPath(p), Changed, m)
		if err != nil {
			return nil, err
		}

		n = &node{
			id:     EntityID(len(ct.nodes)),
			path:   p,
			key:    key,
			status: Unmarked,
			parent: parent.id,
			depth:  parent.depth + 1,
		}
		if err := ct.index.insertKey(key, n.id); err != nil {
			return nil, err
		}
		ct.nodes = append(ct.nodes, n)
		ct.bitmaps.add(n.id, Unmarked)

		parent.children = append(parent.children, n.id)
		if len(parent.children) == 1 {
			m.expand = append(m.expand, parent.id)
		}
		m.attached = append(m.attached, n.id)
		m.updated = append(m.updated, n.id)
		m.maxDepth = max(m.maxDepth, n.depth)
	}

	if changeType == Deleted {
		ct.markDeleted(n, m)
	}

	// A fresh entity keeps its created badge through the content-changed
	// notification that usually follows the create.
	if !(changeType == Changed && n.status == StatusCreated) {
		ct.setStatus(n, statusFor(changeType), m)
	}
	return n, nil
}

// markDeleted marks n and every currently known descendant as deleted
func (ct *ChangeTree) markDeleted(n *node, m *mutation) {
	ct.setStatus(n, StatusDeleted, m)
	for _, child := range n.children {
		ct.markDeleted(ct.nodes[child], m)
	}
}

func (ct *ChangeTree) setStatus(n *node, s Status, m *mutation) {
	if n.status == s {
		return
	}
	ct.bitmaps.move(n.id, n.status, s)
	n.status = s
	m.updated = append(m.updated, n.id)
}

// viewsLocked returns views for ids, keeping the first occurrence of each
func (ct *ChangeTree) viewsLocked(ids []EntityID) []Entity {
	seen := make(map[EntityID]struct{}, len(ids))
	out := make([]Entity, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, ct.nodes[id].view())
	}
	return out
}
