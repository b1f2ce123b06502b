// Package mount exposes a query's live result set as a read-only virtual
// directory of symlinks: one link per matched node, pointing at the node's
// real absolute path. Two backends share one listing: a cgofuse filesystem
// for FUSE hosts and a billy.Filesystem adapter served over NFS.
package mount

import (
	"fmt"
	"sort"

	"github.com/agentic-research/lsf/internal/control"
	"github.com/agentic-research/lsf/internal/graph"
	"github.com/agentic-research/lsf/internal/query"
)

// Entry is one symlink in the mounted result directory.
type Entry struct {
	// Name is the link's basename within the mount, unique across the
	// listing.
	Name string
	// Target is the absolute path the link points at.
	Target string
}

// BuildEntries evaluates expr against hot's current graph and resolves
// every hit to a symlink entry. Duplicate basenames are disambiguated
// with a numeric suffix in result order. A cancelled evaluation returns
// (nil, false, nil).
func BuildEntries(hot *graph.HotSwapGraph, expr query.Expr, opts query.Options, token control.Token) ([]Entry, bool, error) {
	g := hot.Load()
	nodes, ok, err := query.Evaluate(g, expr, opts, token)
	if err != nil || !ok {
		return nil, ok, err
	}

	taken := make(map[string]int, len(nodes))
	entries := make([]Entry, 0, len(nodes))
	for _, node := range nodes {
		path, ok := g.NodePath(node)
		if !ok {
			continue
		}
		name, ok := g.NameOf(node)
		if !ok || name == "" {
			continue
		}
		if n := taken[name]; n > 0 {
			taken[name] = n + 1
			name = fmt.Sprintf("%s~%d", name, n+1)
		} else {
			taken[name] = 1
		}
		entries = append(entries, Entry{Name: name, Target: path})
	}
	return entries, true, nil
}

// listing is the shared, swappable entry table behind both backends.
type listing struct {
	entries []Entry
	byName  map[string]Entry
}

func newListing(entries []Entry) *listing {
	l := &listing{entries: entries, byName: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		l.byName[e.Name] = e
	}
	return l
}

// names returns entry names in listing order; the FUSE Readdir uses the
// result-set order, not a lexicographic one, matching the evaluator's
// first-seen ordering contract.
func (l *listing) names() []string {
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Name
	}
	return out
}

// lookup returns the entry named name.
func (l *listing) lookup(name string) (Entry, bool) {
	e, ok := l.byName[name]
	return e, ok
}

// sortedCopy is used by the NFS ReadDir, which some clients expect to be
// stable across calls regardless of result order.
func (l *listing) sortedCopy() []Entry {
	out := append([]Entry(nil), l.entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
