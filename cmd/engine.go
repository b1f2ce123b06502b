package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/agentic-research/lsf/internal/cache"
	"github.com/agentic-research/lsf/internal/config"
	"github.com/agentic-research/lsf/internal/control"
	"github.com/agentic-research/lsf/internal/graph"
	"github.com/agentic-research/lsf/internal/ingest"
	"github.com/agentic-research/lsf/internal/mcpserver"
	"github.com/agentic-research/lsf/internal/namepool"
	"github.com/agentic-research/lsf/internal/query"
	"github.com/agentic-research/lsf/internal/walker"
)

// ErrFatal wraps the only startup failures that abort the process: an
// unresolvable root or an unloadable configuration.
var ErrFatal = errors.New("fatal initialization error")

// engine bundles the live graph with the supporting machinery every
// subcommand shares: cancellation issuer, change ingest, persistence.
type engine struct {
	cfg      config.Config
	hot      *graph.HotSwapGraph
	issuer   *control.Issuer
	ingestor *ingest.Ingestor
	eventLog *ingest.EventLog
}

// newEngine resolves the root, restores the graph from cache or walks it
// fresh, and wires the ingest plumbing. rootArg may be empty when the
// config file supplies the root.
func newEngine(ctx context.Context, rootArg string, refresh bool) (*engine, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("%w: no home directory: %v", ErrFatal, err)
	}
	cfg.ApplyDefaults(home)

	root := rootArg
	if root == "" {
		root = cfg.Root
	}
	if root == "" {
		return nil, fmt.Errorf("%w: no root given (argument or config)", ErrFatal)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve root %q: %v", ErrFatal, root, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("%w: root %q: %v", ErrFatal, abs, err)
	}

	g := restoreOrWalk(ctx, cfg, abs, refresh)
	e := &engine{cfg: cfg, hot: graph.NewHotSwap(g)}

	if issuer, err := control.OpenOrCreate(cfg.ControlPath, 1); err == nil {
		e.issuer = issuer
	} else {
		log.Printf("control block unavailable, queries run uncancellable: %v", err)
	}

	if eventLog, err := ingest.OpenEventLog(cfg.EventLogPath); err == nil {
		e.eventLog = eventLog
	} else {
		log.Printf("event log unavailable: %v", err)
	}
	e.ingestor = ingest.New(e.hot, e.eventLog)

	// Crash recovery: re-apply logged events past the restored cursor.
	if e.eventLog != nil {
		if replay, err := e.eventLog.ReplaySince(g.ChangeCursor()); err == nil && len(replay) > 0 {
			if e.ingestor.HandleBatch(replay) == ingest.OutcomeRescanRequired {
				if err := e.rescan(ctx); err != nil {
					log.Printf("recovery rescan failed: %v", err)
				}
			}
		}
	}
	return e, nil
}

// restoreOrWalk prefers the persistent cache; any cache problem falls
// back to a full walk, never to a startup failure.
func restoreOrWalk(ctx context.Context, cfg config.Config, root string, refresh bool) *graph.Graph {
	if !refresh {
		g, err := cache.Load(cfg.CachePath)
		if err == nil && g.RootPath() == root {
			fmt.Printf("Resumed from cache: %s\n", cfg.CachePath)
			return g
		}
		if err != nil && !os.IsNotExist(err) {
			log.Printf("cache load failed, re-walking: %v", err)
		}
	}

	fmt.Println("Walking filesystem...")
	g, stats, err := walker.Walk(ctx, root, nil)
	if err != nil {
		log.Printf("walk finished with error: %v", err)
	}
	fmt.Printf("Indexed %d files, %d dirs (%d errors)\n",
		stats.Files.Load(), stats.Dirs.Load(), stats.Errors.Load())
	return g
}

func walkWithPool(ctx context.Context, root string, pool *namepool.Pool) (*graph.Graph, error) {
	g, _, err := walker.Walk(ctx, root, pool)
	return g, err
}

// rescan re-walks the root and hot-swaps the rebuilt graph in, keeping
// the name pool.
func (e *engine) rescan(ctx context.Context) error {
	return e.hot.Rescan(ctx, walkWithPool)
}

// token issues a fresh cancellation token, superseding in-flight queries.
func (e *engine) token() control.Token {
	if e.issuer == nil {
		return control.NoopToken()
	}
	return e.issuer.Next()
}

// queryOptions returns the config-driven matching options.
func queryOptions(e *engine) query.Options {
	return query.Options{CaseInsensitive: e.cfg.CaseInsensitive}
}

// evaluate compiles and runs one query text. ok is false when a newer
// query superseded this one.
func (e *engine) evaluate(text string) ([]mcpserver.Result, bool, error) {
	expr, err := compileQuery(text)
	if err != nil {
		return nil, true, err
	}
	if home, ok := query.HomeDir(); ok {
		expr = query.ExpandHomeDirs(expr, home)
	}
	expr = query.ReorderAnd(expr)

	g := e.hot.Load()
	nodes, ok, err := query.Evaluate(g, expr, queryOptions(e), e.token())
	if err != nil || !ok {
		return nil, ok, err
	}
	return mcpserver.Results(g, nodes), true, nil
}

// flush writes the persistent snapshot.
func (e *engine) flush() error {
	return cache.Save(e.hot.Load(), e.cfg.CachePath)
}

// close releases the control block and event log; it does not flush.
func (e *engine) close() {
	if e.issuer != nil {
		_ = e.issuer.Close()
	}
	if e.eventLog != nil {
		_ = e.eventLog.Close()
	}
}
