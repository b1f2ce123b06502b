package graph

import (
	"context"
	"sync"

	"github.com/agentic-research/lsf/internal/namepool"
)

// HotSwapGraph lets readers keep using a consistent snapshot of the graph
// while a rescan builds a replacement in the background, then atomically
// swaps the pointer in. Generalized from the teacher's internal/graph
// hot-swap wrapper around MemoryStore.
type HotSwapGraph struct {
	mu      sync.RWMutex
	current *Graph
}

// NewHotSwap wraps an already-built Graph.
func NewHotSwap(g *Graph) *HotSwapGraph {
	return &HotSwapGraph{current: g}
}

// Load returns the currently active Graph. Callers must not retain it
// across a call they know will trigger a Swap if they need the latest
// data; Load again instead.
func (h *HotSwapGraph) Load() *Graph {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Swap installs next as the current graph and returns the graph it
// replaced.
func (h *HotSwapGraph) Swap(next *Graph) *Graph {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.current
	h.current = next
	return prev
}

// Rescan walks rootPath fresh via walkFn and swaps the result in,
// preserving the name pool and change cursor of the graph being replaced.
// Readers observe either the old or the new graph in full; never a
// partially built one.
func (h *HotSwapGraph) Rescan(ctx context.Context, walkFn func(ctx context.Context, root string, pool *namepool.Pool) (*Graph, error)) error {
	cur := h.Load()
	fresh, err := cur.Rescan(ctx, walkFn)
	if err != nil {
		return err
	}
	h.Swap(fresh)
	return nil
}
