package query

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agentic-research/lsf/internal/control"
	"github.com/agentic-research/lsf/internal/graph"
	"github.com/agentic-research/lsf/internal/namepool"
)

func evaluateWord(g *graph.Graph, text string, opts Options, token control.Token) ([]graph.NodeId, bool, error) {
	if strings.ContainsAny(text, "*?") {
		return evaluateRegex(g, wildcardToRegex(text), opts, token)
	}
	return evaluatePhrase(g, text, opts, token)
}

func evaluatePhrase(g *graph.Graph, text string, opts Options, token control.Token) ([]graph.NodeId, bool, error) {
	matchers := querySegmentation(text, opts.CaseInsensitive)
	if len(matchers) == 0 {
		return nil, true, nil
	}
	return executeMatchers(g, matchers, token)
}

func evaluateRegex(g *graph.Graph, pattern string, opts Options, token control.Token) ([]graph.NodeId, bool, error) {
	flags := ""
	if opts.CaseInsensitive {
		flags = "(?i)"
	}
	re, err := regexp.Compile(flags + pattern)
	if err != nil {
		return nil, true, err
	}
	return executeMatchers(g, []segmentMatcher{{re: re}}, token)
}

// executeMatchers is the shared driver behind phrase and regex terms: the
// first matcher resolves against the whole name pool, and each following
// matcher narrows to children of the current node set whose name also
// matches, exactly mirroring query.rs's chained path-segment evaluation.
func executeMatchers(g *graph.Graph, matchers []segmentMatcher, token control.Token) ([]graph.NodeId, bool, error) {
	if len(matchers) == 0 {
		return nil, true, nil
	}

	var nodeSet []graph.NodeId
	haveSet := false

	for _, m := range matchers {
		if haveSet {
			var next []graph.NodeId
			for i, node := range nodeSet {
				if i%cancelCheckInterval == 0 && token.Cancelled() {
					return nil, false, nil
				}
				children := g.ChildrenOf(node)
				type hit struct {
					name  string
					child graph.NodeId
				}
				var hits []hit
				for _, child := range children {
					name, ok := g.NameOf(child)
					if !ok {
						continue
					}
					if m.matches(name) {
						hits = append(hits, hit{name, child})
					}
				}
				sort.Slice(hits, func(a, b int) bool { return hits[a].name < hits[b].name })
				for _, h := range hits {
					next = append(next, h.child)
				}
			}
			nodeSet = next
			continue
		}

		names, ok := searchByMatcher(g, m, token)
		if !ok {
			return nil, false, nil
		}
		var nodes []graph.NodeId
		for i, name := range names {
			if i%cancelCheckInterval == 0 && token.Cancelled() {
				return nil, false, nil
			}
			nodes = append(nodes, g.NodesByName(name)...)
		}
		nodeSet = nodes
		haveSet = true
	}
	return nodeSet, true, nil
}

func searchByMatcher(g *graph.Graph, m segmentMatcher, token control.Token) ([]namepool.InternedName, bool) {
	pool := g.Pool()
	if m.re != nil {
		return pool.SearchRegex(m.re, token)
	}
	if m.fold {
		// Pool bytes keep their original case, so a folded needle cannot
		// go through the raw byte search; scan name-by-name with a
		// case-insensitive anchored regex instead.
		re, err := regexp.Compile("(?i)" + anchoredPattern(m.kind, m.needle))
		if err != nil {
			return nil, true
		}
		return pool.SearchRegex(re, token)
	}
	switch m.kind {
	case segmentPrefix:
		return pool.SearchPrefix([]byte(m.needle), token)
	case segmentSuffix:
		return pool.SearchSuffix([]byte(m.needle), token)
	case segmentExact:
		return pool.SearchExact([]byte(m.needle), token)
	default:
		return pool.SearchSubstr(m.needle, token)
	}
}

// anchoredPattern quotes needle and anchors it per the segment kind, so a
// folded lookup matches exactly what the byte-search variants would.
func anchoredPattern(kind segmentKind, needle string) string {
	q := regexp.QuoteMeta(needle)
	switch kind {
	case segmentPrefix:
		return "^" + q
	case segmentSuffix:
		return q + "$"
	case segmentExact:
		return "^" + q + "$"
	default:
		return q
	}
}
