// Package metadata backfills the lazy size/ctime/mtime fields a walk
// leaves unpopulated, one stat call per node, on demand (the query
// evaluator's size and date filters call Ensure as they test each node).
package metadata

import (
	"os"
	"runtime"
	"sync"

	"github.com/agentic-research/lsf/internal/control"
	"github.com/agentic-research/lsf/internal/graph"
)

// Ensure stats node's path and installs the resulting MetadataSlot on the
// graph when the node's slot is None; a slot that is already Some or
// Inaccessible is left as it is until ingest resets it to None. A failed
// stat marks the node inaccessible rather than erroring, since the walk
// already recorded its FileType and the query evaluator can still answer
// type/name/path queries about it.
func Ensure(g *graph.Graph, node graph.NodeId) error {
	n, ok := g.GetNode(node)
	if !ok {
		return nil
	}
	if !n.Metadata.IsNone() {
		return nil
	}
	path, ok := g.NodePath(node)
	if !ok {
		return nil
	}

	info, err := os.Lstat(path)
	if err != nil {
		return g.SetMetadata(node, graph.InaccessibleMetadata(n.Metadata.FileTypeHint()))
	}

	ft := n.Metadata.FileTypeHint()
	created, modified := statTimes(info)
	return g.SetMetadata(node, graph.SomeMetadata(ft, uint64(info.Size()), created, modified))
}

// Backfill drives Ensure over a set of nodes using a worker pool bounded
// by parallelism, stopping early if token is cancelled, so a whole set of
// nodes is populated without serializing on a single goroutine's stat
// calls.
func Backfill(g *graph.Graph, nodes []graph.NodeId, token control.Token) error {
	workers := parallelism()
	if workers > len(nodes) {
		workers = len(nodes)
	}
	if workers == 0 {
		return nil
	}

	jobs := make(chan graph.NodeId)
	var wg sync.WaitGroup
	var firstErr error
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for node := range jobs {
				if token.Cancelled() {
					continue
				}
				if err := Ensure(g, node); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}
		}()
	}

	for _, node := range nodes {
		if token.Cancelled() {
			break
		}
		jobs <- node
	}
	close(jobs)
	wg.Wait()
	return firstErr
}

func parallelism() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}
