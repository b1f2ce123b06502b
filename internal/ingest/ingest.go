// Package ingest reconciles a stream of platform-neutral filesystem change
// events into graph mutations: removals, creations (with missing ancestors
// filled in), renames paired across their two half-events, and metadata
// invalidation. Events that signal history loss escalate to a rescan
// outcome instead of being reconciled piecemeal.
package ingest

import (
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentic-research/lsf/internal/graph"
)

// ChangeFlag is one bit in a ChangeEvent's flag set. The set mirrors the
// platform-neutral union of what FSEvents/inotify-class sources report.
type ChangeFlag uint32

const (
	FlagCreated ChangeFlag = 1 << iota
	FlagRemoved
	FlagRenamed
	FlagModified
	FlagInodeModified
	FlagFinderInfoModified
	FlagXAttrModified
	FlagOwnerModified
	FlagRootChanged
	FlagMount
	FlagUnmount
	FlagHistoryDone
	FlagKernelDropped
	FlagUserDropped
	FlagMustScanSubDirs
	FlagIsFile
	FlagIsDir
	FlagIsSymlink
	FlagIsHardLink
	FlagIsLastHardLink
)

// ChangeFlagSet is a bitset over ChangeFlag values.
type ChangeFlagSet uint32

// Has reports whether every bit of f is set.
func (s ChangeFlagSet) Has(f ChangeFlag) bool { return ChangeFlag(s)&f == f }

// HasAny reports whether any bit of f is set.
func (s ChangeFlagSet) HasAny(f ChangeFlag) bool { return ChangeFlag(s)&f != 0 }

// ChangeEvent is one change notification from the platform source. ID is
// monotonic per source; two halves of a rename share one ID.
type ChangeEvent struct {
	Path  string
	ID    uint64
	Flags ChangeFlagSet
}

// Outcome is HandleBatch's verdict: either the batch was reconciled into
// the graph, or a rescan is required and the batch was abandoned.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRescanRequired
)

// rescanFlags are the signals that invalidate incremental reconciliation.
// Mount/Unmount at or beneath the root are treated as RootChanged.
const rescanFlags = FlagMustScanSubDirs | FlagKernelDropped | FlagUserDropped |
	FlagRootChanged | FlagMount | FlagUnmount

// DefaultRenameWindow is how long a lone rename half waits for its pair
// before degrading to a removal or a creation.
const DefaultRenameWindow = 500 * time.Millisecond

// pendingRename is the first-seen half of a rename pair, held until its
// mate arrives or the window closes.
type pendingRename struct {
	path string
	seen time.Time
}

// Ingestor applies change events to the live graph. It is driven from a
// single goroutine; the graph's own locking covers concurrent readers.
type Ingestor struct {
	hot    *graph.HotSwapGraph
	window time.Duration

	pending map[uint64]pendingRename
	eventLog *EventLog // optional durable record of applied events

	// OnReplayComplete, if set, is invoked once when a HistoryDone event
	// arrives, letting a UI observe the end of initial replay.
	OnReplayComplete func()

	now func() time.Time
}

// New returns an Ingestor reconciling into hot's current graph. eventLog
// may be nil to skip durable logging.
func New(hot *graph.HotSwapGraph, eventLog *EventLog) *Ingestor {
	return &Ingestor{
		hot:      hot,
		window:   DefaultRenameWindow,
		pending:  make(map[uint64]pendingRename),
		eventLog: eventLog,
		now:      time.Now,
	}
}

// HandleBatch applies events in arrival order, then advances the graph's
// change cursor to the largest ID seen. A rescan signal abandons the rest
// of the batch and returns OutcomeRescanRequired; the caller is expected
// to rescan and resume. Per-event errors never fail the batch.
func (in *Ingestor) HandleBatch(events []ChangeEvent) Outcome {
	g := in.hot.Load()
	in.flushExpired(g)

	maxID := uint64(0)
	outcome := OutcomeOK
	applied := events[:0:0]

	for _, ev := range events {
		if ev.ID > maxID {
			maxID = ev.ID
		}
		applied = append(applied, ev)

		if ev.Flags.HasAny(rescanFlags) {
			outcome = OutcomeRescanRequired
			break
		}
		in.applyOne(g, ev)
	}

	// The end of a batch closes its rename window even when the wall clock
	// has not: a half still unpaired here is settled now.
	if outcome == OutcomeOK {
		in.flushAll(g)
	}

	if maxID > 0 {
		g.AdvanceChangeCursor(maxID)
	}
	if in.eventLog != nil && len(applied) > 0 {
		if err := in.eventLog.Append(applied); err != nil {
			log.Printf("ingest: event log append failed: %v", err)
		}
	}
	return outcome
}

func (in *Ingestor) applyOne(g *graph.Graph, ev ChangeEvent) {
	if ev.Flags.Has(FlagHistoryDone) {
		if in.OnReplayComplete != nil {
			in.OnReplayComplete()
			in.OnReplayComplete = nil
		}
		return
	}

	if ev.Flags.Has(FlagRemoved) {
		if node, ok := g.NodeIndexForPath(ev.Path); ok {
			g.Remove(node)
		}
		return
	}

	if ev.Flags.Has(FlagRenamed) {
		in.applyRenameHalf(g, ev)
		return
	}

	if ev.Flags.Has(FlagCreated) {
		if _, ok := g.NodeIndexForPath(ev.Path); !ok {
			in.ensurePath(g, ev.Path, typeFromFlags(ev.Flags))
		}
	}

	if ev.Flags.HasAny(FlagModified | FlagInodeModified | FlagXAttrModified | FlagOwnerModified) {
		if node, ok := g.NodeIndexForPath(ev.Path); ok {
			if n, exists := g.GetNode(node); exists {
				_ = g.SetMetadata(node, graph.NoneMetadata(n.Metadata.FileTypeHint()))
			}
		}
	}
}

// applyRenameHalf pairs the two halves of a rename by ChangeId. The OS
// emits the old path first and the new path second; a half left alone past
// the window degrades to a removal (old side) or a creation (new side).
func (in *Ingestor) applyRenameHalf(g *graph.Graph, ev ChangeEvent) {
	first, ok := in.pending[ev.ID]
	if !ok {
		in.pending[ev.ID] = pendingRename{path: ev.Path, seen: in.now()}
		return
	}
	delete(in.pending, ev.ID)
	in.applyRename(g, first.path, ev.Path)
}

func (in *Ingestor) applyRename(g *graph.Graph, oldPath, newPath string) {
	node, ok := g.NodeIndexForPath(oldPath)
	if !ok {
		// The old side is unknown: treat the pair as a move into the tree.
		in.ensurePath(g, newPath, graph.Unknown)
		return
	}

	if filepath.Dir(oldPath) == filepath.Dir(newPath) {
		if err := g.Rename(node, filepath.Base(newPath)); err != nil {
			log.Printf("ingest: rename %q -> %q: %v", oldPath, newPath, err)
		}
		return
	}

	// Cross-directory move: the subtree identity is not preserved; remove
	// and re-create, leaving descendants to later events or a rescan.
	ft := graph.Unknown
	if n, exists := g.GetNode(node); exists {
		ft = n.Metadata.FileTypeHint()
	}
	g.Remove(node)
	in.ensurePath(g, newPath, ft)
}

// resolveLone settles a rename half whose pair never arrived: a path still
// present in the graph was renamed away (removal); an unknown path was
// renamed in (creation).
func (in *Ingestor) resolveLone(g *graph.Graph, path string) {
	if node, ok := g.NodeIndexForPath(path); ok {
		g.Remove(node)
		return
	}
	in.ensurePath(g, path, graph.Unknown)
}

func (in *Ingestor) flushExpired(g *graph.Graph) {
	cutoff := in.now().Add(-in.window)
	for id, p := range in.pending {
		if p.seen.Before(cutoff) {
			delete(in.pending, id)
			in.resolveLone(g, p.path)
		}
	}
}

func (in *Ingestor) flushAll(g *graph.Graph) {
	for id, p := range in.pending {
		delete(in.pending, id)
		in.resolveLone(g, p.path)
	}
}

// FlushPending settles every outstanding rename half older than the
// rename window; younger halves stay pending. The event loop calls this on
// a timer so a lone half does not linger when no further batches arrive.
func (in *Ingestor) FlushPending() {
	in.flushExpired(in.hot.Load())
}

// ensurePath inserts the node for path, creating missing ancestors as
// directories with no metadata. Paths outside the indexed root are
// silently ignored, per the reconciliation error model.
func (in *Ingestor) ensurePath(g *graph.Graph, path string, leaf graph.FileType) {
	rel, err := filepath.Rel(g.RootPath(), path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	cur := g.RootNode()
	for i, part := range parts {
		if part == "" {
			continue
		}
		if child, ok := g.ChildNamed(cur, part); ok {
			cur = child
			continue
		}
		ft := graph.Dir
		if i == len(parts)-1 {
			ft = leaf
		}
		child, err := g.InsertChild(cur, part, graph.NoneMetadata(ft))
		if err != nil {
			log.Printf("ingest: create %q: %v", path, err)
			return
		}
		cur = child
	}
}

func typeFromFlags(flags ChangeFlagSet) graph.FileType {
	switch {
	case flags.Has(FlagIsDir):
		return graph.Dir
	case flags.Has(FlagIsSymlink):
		return graph.Symlink
	case flags.Has(FlagIsFile):
		return graph.File
	default:
		return graph.Unknown
	}
}
