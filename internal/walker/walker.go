// Package walker builds a graph.Graph by descending a real directory tree
// in parallel, tolerating permission errors on individual entries rather
// than aborting the whole walk.
//
// Grounded on original_source/fswalk/src/lib.rs: a directory is walked
// with one fan-out point per directory entry (there: rayon's par_bridge
// over read_dir entries; here: one errgroup task per entry, run inline
// when every worker slot is busy), and a missing path is silently skipped.
// A directory whose listing fails is retried exactly once; if it fails
// again its node stays in the tree without children and the failure is
// counted in Stats.Errors. An entry whose lstat fails still gets a place
// in the tree as an inaccessible node.
package walker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/agentic-research/lsf/internal/graph"
	"github.com/agentic-research/lsf/internal/namepool"
	"golang.org/x/sync/errgroup"
)

// Stats accumulates counts across a walk. All fields are safe for
// concurrent use via the atomic package; read them only after Walk
// returns.
type Stats struct {
	Files  atomic.Int64
	Dirs   atomic.Int64
	Errors atomic.Int64
}

// Walk descends root and returns a freshly built graph plus stats. The
// returned graph's name pool is newly allocated unless pool is non-nil,
// in which case names are interned into it instead, letting a rescan
// reuse a prior graph's pool as the distilled spec requires.
func Walk(ctx context.Context, root string, pool *namepool.Pool) (*graph.Graph, *Stats, error) {
	stats := &Stats{}

	var g *graph.Graph
	if pool != nil {
		g = graph.NewWithPool(root, pool, 0)
	} else {
		g = graph.New(root)
	}

	info, err := os.Lstat(root)
	if err != nil {
		return g, stats, err
	}
	rootType := classify(info)
	stats.bump(rootType)

	if rootType == graph.Dir {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(parallelism())
		werr := walkChildren(egCtx, eg, g, g.RootNode(), root, stats)
		if err := eg.Wait(); err != nil {
			return g, stats, err
		}
		if err := werr; err != nil {
			return g, stats, err
		}
	}
	return g, stats, nil
}

func (s *Stats) bump(ft graph.FileType) {
	switch ft {
	case graph.Dir:
		s.Dirs.Add(1)
	default:
		s.Files.Add(1)
	}
}

// walkChildren lists dir's entries and, for each one, inserts a node and
// recurses into subdirectories, as a new errgroup goroutine when a worker
// slot is free and inline otherwise (so a task never blocks waiting for a
// slot its own ancestors hold). Graph's own locking makes concurrent
// InsertChild calls from sibling goroutines safe.
func walkChildren(ctx context.Context, eg *errgroup.Group, g *graph.Graph, parent graph.NodeId, dir string, stats *Stats) error {
	entries, err := readDirWithRetry(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		stats.Errors.Add(1)
		return nil
	}

	for _, entry := range entries {
		entry := entry
		childPath := filepath.Join(dir, entry.Name())

		visit := func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			info, err := os.Lstat(childPath)
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				stats.Errors.Add(1)
				_, insErr := g.InsertChild(parent, entry.Name(), graph.InaccessibleMetadata(graph.Unknown))
				if insErr != nil && !errors.Is(insErr, graph.ErrAlreadyExists) {
					return insErr
				}
				return nil
			}

			ft := classify(info)
			stats.bump(ft)

			childID, insErr := g.InsertChild(parent, entry.Name(), graph.NoneMetadata(ft))
			if insErr != nil {
				if errors.Is(insErr, graph.ErrAlreadyExists) {
					return nil
				}
				return insErr
			}

			if ft == graph.Dir {
				return walkChildren(ctx, eg, g, childID, childPath, stats)
			}
			return nil
		}
		if !eg.TryGo(visit) {
			if err := visit(); err != nil {
				return err
			}
		}
	}
	return nil
}

// readDirWithRetry mirrors handle_error_and_retry: a read error is
// retried exactly once before being surfaced to the caller.
func readDirWithRetry(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err == nil {
		return entries, nil
	}
	if os.IsNotExist(err) {
		return nil, err
	}
	return os.ReadDir(dir)
}

func classify(info os.FileInfo) graph.FileType {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return graph.Symlink
	case info.IsDir():
		return graph.Dir
	default:
		return graph.File
	}
}

func parallelism() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	if n > 32 {
		return 32
	}
	return n
}
