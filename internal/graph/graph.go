// Package graph implements the indexed filesystem tree: a node arena plus
// an interned name pool plus a name→nodes reverse index, with the
// mutation operations the walker and change-event ingest both drive.
//
// Generalized from the teacher's internal/graph/graph.go MemoryStore,
// which keyed nodes by opaque string ids for an AST-derived virtual
// filesystem; here nodes are keyed by the compact NodeId the spec
// requires and the tree always models a real directory hierarchy.
package graph

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agentic-research/lsf/internal/control"
	"github.com/agentic-research/lsf/internal/namepool"
	"github.com/agentic-research/lsf/internal/slab"
)

// ErrAlreadyExists is returned by InsertChild and Rename when a sibling
// with the requested name already exists under the same parent.
var ErrAlreadyExists = errors.New("graph: a sibling with that name already exists")

// Graph owns the node arena, the name pool, and the reverse name index.
// Every method takes the Graph's own RWMutex, so each call is safe for
// concurrent use; a sequence of calls is not atomic as a whole.
// HotSwapGraph adds locking around replacing the whole Graph.
type Graph struct {
	mu           sync.RWMutex
	arena        *slab.Slab[FileNode]
	pool         *namepool.Pool
	nameIndex    map[namepool.InternedName][]NodeId
	rootPath     string
	rootNode     NodeId
	changeCursor uint64
}

// New returns a Graph containing only a root node at rootPath, with an
// empty name pool shared by nothing else.
func New(rootPath string) *Graph {
	g := &Graph{
		arena:     slab.New[FileNode](),
		pool:      namepool.New(),
		nameIndex: make(map[namepool.InternedName][]NodeId),
		rootPath:  rootPath,
	}
	rootName, _ := g.pool.Push("")
	idx := g.arena.Insert(FileNode{Name: rootName, Parent: NoNode})
	g.rootNode = NodeId(idx)
	g.nameIndex[rootName] = []NodeId{g.rootNode}
	return g
}

// NewWithPool returns a Graph containing only a root node at rootPath,
// interning names into pool instead of a fresh one. internal/walker uses
// this on a rescan to reuse the previous graph's pool, and internal/cache
// uses it to restore a graph around a pool deserialized from a snapshot
// before replaying the node table over it.
func NewWithPool(rootPath string, pool *namepool.Pool, changeCursor uint64) *Graph {
	g := &Graph{
		arena:        slab.New[FileNode](),
		pool:         pool,
		nameIndex:    make(map[namepool.InternedName][]NodeId),
		rootPath:     rootPath,
		changeCursor: changeCursor,
	}
	rootName, _ := pool.Push("")
	idx := g.arena.Insert(FileNode{Name: rootName, Parent: NoNode})
	g.rootNode = NodeId(idx)
	g.nameIndex[rootName] = []NodeId{g.rootNode}
	return g
}

// Pool returns the graph's name pool, used by internal/query for name-pool
// searches and by internal/cache for persistence.
func (g *Graph) Pool() *namepool.Pool { return g.pool }

// RootNode returns the NodeId of the tree root.
func (g *Graph) RootNode() NodeId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rootNode
}

// RootPath returns the absolute path the root node corresponds to.
func (g *Graph) RootPath() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rootPath
}

// ChangeCursor returns the largest ChangeId reconciled into this graph so
// far.
func (g *Graph) ChangeCursor() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.changeCursor
}

// AdvanceChangeCursor bumps the cursor to id if id is larger than the
// current value.
func (g *Graph) AdvanceChangeCursor(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id > g.changeCursor {
		g.changeCursor = id
	}
}

// RestoreArena is used only by internal/cache while rebuilding a graph
// from a persisted snapshot; it installs pre-built arena contents and
// rebuilds the reverse name index, exactly as the distilled spec's loader
// does after deserializing the node table.
func (g *Graph) RestoreArena(arena *slab.Slab[FileNode], rootNode NodeId) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.arena = arena
	g.rootNode = rootNode
	g.nameIndex = make(map[namepool.InternedName][]NodeId)
	arena.Each(func(idx uint32, n *FileNode) {
		id := NodeId(idx)
		g.nameIndex[n.Name] = append(g.nameIndex[n.Name], id)
	})
}

// RangeNodes calls fn once for every occupied node, in arena order, and is
// used by internal/cache to iterate nodes for snapshotting.
func (g *Graph) RangeNodes(fn func(id NodeId, n *FileNode)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	g.arena.Each(func(idx uint32, n *FileNode) {
		id := NodeId(idx)
		fn(id, n)
	})
}

// IndexName registers id under name in the reverse index.
func (g *Graph) IndexName(name namepool.InternedName, id NodeId) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nameIndex[name] = append(g.nameIndex[name], id)
}

// getNode returns the node at id under the caller's already-held lock.
func (g *Graph) getNode(id NodeId) (*FileNode, bool) {
	return g.arena.Get(uint32(id))
}

// GetNode returns a copy of the node at id.
func (g *Graph) GetNode(id NodeId) (FileNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.getNode(id)
	if !ok {
		return FileNode{}, false
	}
	return *n, true
}

// SetMetadata installs meta on node, replacing whatever was there. Used by
// internal/metadata after a stat call and by internal/ingest to reset a
// modified node's slot to None.
func (g *Graph) SetMetadata(node NodeId, meta MetadataSlot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.getNode(node)
	if !ok {
		return fmt.Errorf("graph: node %d not found", node)
	}
	n.Metadata = meta
	return nil
}

// ChildrenOf returns node's children in insertion order. Returns nil for an
// unknown node.
func (g *Graph) ChildrenOf(node NodeId) []NodeId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.getNode(node)
	if !ok {
		return nil
	}
	out := make([]NodeId, len(n.Children))
	copy(out, n.Children)
	return out
}

// ParentOf returns node's parent, or (NoNode, false) if node is unknown or
// is the root.
func (g *Graph) ParentOf(node NodeId) (NodeId, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.getNode(node)
	if !ok || n.Parent == NoNode {
		return NoNode, false
	}
	return n.Parent, true
}

// NameOf resolves node's interned name to a string.
func (g *Graph) NameOf(node NodeId) (string, bool) {
	g.mu.RLock()
	n, ok := g.getNode(node)
	g.mu.RUnlock()
	if !ok {
		return "", false
	}
	return g.pool.Get(n.Name)
}

// InsertChild allocates a new node named name under parent with the given
// metadata, rejecting a duplicate sibling name with ErrAlreadyExists.
func (g *Graph) InsertChild(parent NodeId, name string, meta MetadataSlot) (NodeId, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	parentNode, ok := g.getNode(parent)
	if !ok {
		return NoNode, fmt.Errorf("graph: parent %d not found", parent)
	}
	interned, err := g.pool.Push(name)
	if err != nil {
		return NoNode, err
	}
	for _, sib := range parentNode.Children {
		sibNode, ok := g.getNode(sib)
		if ok && sibNode.Name == interned {
			return NoNode, fmt.Errorf("%w: %q under parent %d", ErrAlreadyExists, name, parent)
		}
	}

	idx := g.arena.Insert(FileNode{Name: interned, Parent: parent, Metadata: meta})
	id := NodeId(idx)

	// Re-fetch parentNode since Insert may have grown the backing slice.
	parentNode, _ = g.getNode(parent)
	parentNode.addChild(id)

	g.nameIndex[interned] = append(g.nameIndex[interned], id)
	return id, nil
}

// Remove recursively removes node and every descendant, unlinking each
// from its parent's children and from the name index. Removing an unknown
// id is a no-op. Returns the count of nodes actually removed.
func (g *Graph) Remove(node NodeId) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeLocked(node)
}

func (g *Graph) removeLocked(node NodeId) int {
	n, ok := g.getNode(node)
	if !ok {
		return 0
	}

	count := 0
	for _, child := range append([]NodeId(nil), n.Children...) {
		count += g.removeLocked(child)
	}

	if n.Parent != NoNode {
		if parentNode, ok := g.getNode(n.Parent); ok {
			filtered := parentNode.Children[:0]
			for _, c := range parentNode.Children {
				if c != node {
					filtered = append(filtered, c)
				}
			}
			parentNode.Children = filtered
		}
	}

	g.unindexLocked(n.Name, node)
	g.arena.Remove(uint32(node))
	return count + 1
}

func (g *Graph) unindexLocked(name namepool.InternedName, id NodeId) {
	entries := g.nameIndex[name]
	for i, e := range entries {
		if e == id {
			g.nameIndex[name] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(g.nameIndex[name]) == 0 {
		delete(g.nameIndex, name)
	}
}

// Rename changes node's name, moving its name-index entry. Fails with
// ErrAlreadyExists if a sibling already holds newName.
func (g *Graph) Rename(node NodeId, newName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.getNode(node)
	if !ok {
		return fmt.Errorf("graph: node %d not found", node)
	}
	interned, err := g.pool.Push(newName)
	if err != nil {
		return err
	}

	if n.Parent != NoNode {
		if parentNode, ok := g.getNode(n.Parent); ok {
			for _, sib := range parentNode.Children {
				if sib == node {
					continue
				}
				if sibNode, ok := g.getNode(sib); ok && sibNode.Name == interned {
					return fmt.Errorf("%w: %q under parent %d", ErrAlreadyExists, newName, n.Parent)
				}
			}
		}
	}

	oldName := n.Name
	n.Name = interned
	g.unindexLocked(oldName, node)
	g.nameIndex[interned] = append(g.nameIndex[interned], node)
	return nil
}

// ChildNamed returns parent's child whose name equals name, if any. The
// ingest layer uses this to descend one component at a time while creating
// missing ancestors.
func (g *Graph) ChildNamed(parent NodeId, name string) (NodeId, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.getNode(parent)
	if !ok {
		return NoNode, false
	}
	for _, child := range n.Children {
		childNode, ok := g.getNode(child)
		if !ok {
			continue
		}
		childName, ok := g.pool.Get(childNode.Name)
		if ok && childName == name {
			return child, true
		}
	}
	return NoNode, false
}

// NodePath walks node's parent chain and joins it onto rootPath. Returns
// false if any link in the chain is missing.
func (g *Graph) NodePath(node NodeId) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var segments []string
	cur := node
	for {
		n, ok := g.getNode(cur)
		if !ok {
			return "", false
		}
		if n.Parent == NoNode {
			break
		}
		name, ok := g.pool.Get(n.Name)
		if !ok {
			return "", false
		}
		segments = append([]string{name}, segments...)
		cur = n.Parent
	}
	return filepath.Join(append([]string{g.rootPath}, segments...)...), true
}

// NodeIndexForPath descends from root matching path components against p,
// which must lie under rootPath. Returns false if any component is
// missing.
func (g *Graph) NodeIndexForPath(p string) (NodeId, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rel, err := filepath.Rel(g.rootPath, p)
	if err != nil {
		return NoNode, false
	}
	if rel == "." {
		return g.rootNode, true
	}

	cur := g.rootNode
	for _, part := range splitPath(rel) {
		n, ok := g.getNode(cur)
		if !ok {
			return NoNode, false
		}
		found := false
		for _, child := range n.Children {
			childNode, ok := g.getNode(child)
			if !ok {
				continue
			}
			name, ok := g.pool.Get(childNode.Name)
			if ok && name == part {
				cur = child
				found = true
				break
			}
		}
		if !found {
			return NoNode, false
		}
	}
	return cur, true
}

func splitPath(rel string) []string {
	var parts []string
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}

// Subtree returns every descendant of node (excluding node itself), in no
// particular order. Returns ok=false if token is cancelled mid-walk.
func (g *Graph) Subtree(node NodeId, token control.Token) ([]NodeId, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []NodeId
	checked := 0
	var walk func(NodeId) bool
	walk = func(id NodeId) bool {
		n, ok := g.getNode(id)
		if !ok {
			return true
		}
		for _, c := range n.Children {
			out = append(out, c)
			checked++
			if checked%(1<<16) == 0 && token.Cancelled() {
				return false
			}
			if !walk(c) {
				return false
			}
		}
		return true
	}
	if !walk(node) {
		return nil, false
	}
	return out, true
}

// AllNodes returns every node in the graph, the root included; it is the
// universe NOT operates over when there is no base set.
func (g *Graph) AllNodes(token control.Token) ([]NodeId, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []NodeId
	checked := 0
	cancelled := false
	g.arena.Each(func(idx uint32, _ *FileNode) {
		if cancelled {
			return
		}
		out = append(out, NodeId(idx))
		checked++
		if checked%(1<<16) == 0 && token.Cancelled() {
			cancelled = true
		}
	})
	if cancelled {
		return nil, false
	}
	return out, true
}

// NodesByName returns the current set of nodes registered under name,
// used by internal/query to resolve a name-pool hit to node ids.
func (g *Graph) NodesByName(name namepool.InternedName) []NodeId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	entries := g.nameIndex[name]
	out := make([]NodeId, len(entries))
	copy(out, entries)
	return out
}

// Rescan re-walks rootPath and returns a fresh graph sharing this graph's
// name pool, for HotSwapGraph to install. The name pool is preserved
// across a rescan because names are cheap and append-only; discarding the
// arena and rebuilding it is the correct simplification the distilled spec
// calls for.
func (g *Graph) Rescan(ctx context.Context, walk func(ctx context.Context, root string, pool *namepool.Pool) (*Graph, error)) (*Graph, error) {
	g.mu.RLock()
	root := g.rootPath
	pool := g.pool
	cursor := g.changeCursor
	g.mu.RUnlock()

	fresh, err := walk(ctx, root, pool)
	if err != nil {
		return nil, err
	}
	fresh.AdvanceChangeCursor(cursor)
	return fresh, nil
}
