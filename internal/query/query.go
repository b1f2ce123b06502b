// Package query evaluates a parsed boolean query expression tree against
// a graph.Graph, producing an ordered, deduplicated set of matching nodes.
//
// Grounded on original_source/search-cache/src/query.rs: the same Empty
// /Term/Not/And/Or shape, the same AND-threads-NOT-into-its-running-set
// evaluation order, and the same cancellation-by-sampling-every-0x10000
// discipline. Set algebra (intersect/union/difference) follows the same
// ordered-vector-plus-membership-set split as the Rust reference's
// intersect_in_place/union_in_place/difference_in_place: an ordered
// []NodeId accumulator carries the result (AND preserves the left
// operand's order, OR is first-seen), while a roaring bitmap stands in
// for the reference's HashSet as the O(1) membership side, NodeId already
// being the uint32 domain a roaring bitmap wants.
package query

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/lsf/internal/control"
	"github.com/agentic-research/lsf/internal/graph"
)

// cancelCheckInterval mirrors CANCEL_CHECK_INTERVAL: token cancellation is
// sampled every this-many elements processed, not on every one, to keep
// the atomic load off the hot path.
const cancelCheckInterval = 0x10000

// Options configures term matching. CaseInsensitive affects word, phrase,
// and regex terms uniformly.
type Options struct {
	CaseInsensitive bool
}

// Expr is a node in the parsed query expression tree.
type Expr interface {
	isExpr()
}

// Empty matches every node in the graph (the universe), used both as a
// literal expression and as NOT's implicit base when it has none.
type Empty struct{}

// Term wraps a single match unit: a word, phrase, regex, or filter.
type Term struct {
	Kind   TermKind
	Text   string // Word, Phrase, Regex
	Filter Filter // valid when Kind == TermFilter
}

// TermKind discriminates Term's payload.
type TermKind int

const (
	TermWord TermKind = iota
	TermPhrase
	TermRegex
	TermFilter
)

// Not negates inner against the running AND accumulator it is evaluated
// within, or against the whole graph when it stands alone.
type Not struct{ Inner Expr }

// And evaluates every part and intersects their results, threading NOT
// parts directly into the running accumulator rather than negating
// against the universe first.
type And struct{ Parts []Expr }

// Or evaluates every part and unions their results.
type Or struct{ Parts []Expr }

func (Empty) isExpr() {}
func (Term) isExpr()  {}
func (Not) isExpr()   {}
func (And) isExpr()   {}
func (Or) isExpr()    {}

// Evaluate runs expr against g. ok is false exactly when token was
// cancelled mid-evaluation, distinct from a legitimate empty result.
func Evaluate(g *graph.Graph, expr Expr, opts Options, token control.Token) (nodes []graph.NodeId, ok bool, err error) {
	switch e := expr.(type) {
	case Empty:
		return searchEmpty(g, token)
	case Term:
		return evaluateTerm(g, e, opts, token)
	case Not:
		return evaluateNot(g, e.Inner, nil, false, opts, token)
	case And:
		return evaluateAnd(g, e.Parts, opts, token)
	case Or:
		return evaluateOr(g, e.Parts, opts, token)
	default:
		return nil, true, nil
	}
}

func searchEmpty(g *graph.Graph, token control.Token) ([]graph.NodeId, bool, error) {
	all, ok := g.AllNodes(token)
	return all, ok, nil
}

func evaluateAnd(g *graph.Graph, parts []Expr, opts Options, token control.Token) ([]graph.NodeId, bool, error) {
	var current []graph.NodeId
	started := false

	for _, part := range parts {
		if not, isNot := part.(Not); isNot {
			result, ok, err := evaluateNot(g, not.Inner, current, started, opts, token)
			if err != nil {
				return nil, true, err
			}
			if !ok {
				return nil, false, nil
			}
			current, started = result, true
			if len(current) == 0 {
				return nil, true, nil
			}
			continue
		}

		result, ok, err := Evaluate(g, part, opts, token)
		if err != nil {
			return nil, true, err
		}
		if !ok {
			return nil, false, nil
		}
		if !started {
			current, ok = dedupOrdered(result, token)
			if !ok {
				return nil, false, nil
			}
			started = true
		} else {
			current, ok = intersectInPlace(current, result, token)
			if !ok {
				return nil, false, nil
			}
		}
		if len(current) == 0 {
			return nil, true, nil
		}
	}
	return current, true, nil
}

func evaluateOr(g *graph.Graph, parts []Expr, opts Options, token control.Token) ([]graph.NodeId, bool, error) {
	var result []graph.NodeId
	seen := roaring.New()
	for _, part := range parts {
		candidate, ok, err := Evaluate(g, part, opts, token)
		if err != nil {
			return nil, true, err
		}
		if !ok {
			return nil, false, nil
		}
		result, ok = unionInPlace(result, seen, candidate, token)
		if !ok {
			return nil, false, nil
		}
	}
	return result, true, nil
}

// evaluateNot negates inner against base (when hasBase), else against the
// whole graph, preserving the universe's order in the difference.
func evaluateNot(g *graph.Graph, inner Expr, base []graph.NodeId, hasBase bool, opts Options, token control.Token) ([]graph.NodeId, bool, error) {
	universe := base
	if !hasBase {
		all, ok, err := searchEmpty(g, token)
		if err != nil || !ok {
			return nil, ok, err
		}
		universe = all
	}

	negated, ok, err := Evaluate(g, inner, opts, token)
	if err != nil {
		return nil, true, err
	}
	if !ok {
		return nil, false, nil
	}
	return differenceInPlace(universe, negated, token)
}

func evaluateTerm(g *graph.Graph, t Term, opts Options, token control.Token) ([]graph.NodeId, bool, error) {
	switch t.Kind {
	case TermWord:
		return evaluateWord(g, t.Text, opts, token)
	case TermPhrase:
		return evaluatePhrase(g, t.Text, opts, token)
	case TermRegex:
		return evaluateRegex(g, t.Text, opts, token)
	case TermFilter:
		return evaluateFilter(g, t.Filter, opts, token)
	default:
		return nil, true, nil
	}
}

// membership builds the bitmap side of a set operation.
func membership(nodes []graph.NodeId) *roaring.Bitmap {
	b := roaring.New()
	for _, n := range nodes {
		b.Add(uint32(n))
	}
	return b
}

// dedupOrdered returns nodes with duplicates removed, first occurrence
// winning, so every accumulator the boolean operators thread around is an
// ordered, de-duplicated vector from the start.
func dedupOrdered(nodes []graph.NodeId, token control.Token) ([]graph.NodeId, bool) {
	seen := roaring.New()
	out := make([]graph.NodeId, 0, len(nodes))
	for i, n := range nodes {
		if i%cancelCheckInterval == 0 && i > 0 && token.Cancelled() {
			return nil, false
		}
		if seen.CheckedAdd(uint32(n)) {
			out = append(out, n)
		}
	}
	return out, true
}

// intersectInPlace keeps values' entries that also appear in rhs,
// preserving values' order: the bitmap is only the membership test.
func intersectInPlace(values, rhs []graph.NodeId, token control.Token) ([]graph.NodeId, bool) {
	members := membership(rhs)
	out := values[:0]
	for i, n := range values {
		if i%cancelCheckInterval == 0 && i > 0 && token.Cancelled() {
			return nil, false
		}
		if members.Contains(uint32(n)) {
			out = append(out, n)
		}
	}
	return out, true
}

// unionInPlace appends candidate's unseen entries onto values in
// first-seen order, with seen carried across calls by evaluateOr.
func unionInPlace(values []graph.NodeId, seen *roaring.Bitmap, candidate []graph.NodeId, token control.Token) ([]graph.NodeId, bool) {
	for i, n := range candidate {
		if i%cancelCheckInterval == 0 && i > 0 && token.Cancelled() {
			return nil, false
		}
		if seen.CheckedAdd(uint32(n)) {
			values = append(values, n)
		}
	}
	return values, true
}

// differenceInPlace removes rhs's entries from universe, preserving
// universe's order, and reports cancellation like its siblings.
func differenceInPlace(universe, rhs []graph.NodeId, token control.Token) ([]graph.NodeId, bool, error) {
	members := membership(rhs)
	out := make([]graph.NodeId, 0, len(universe))
	for i, n := range universe {
		if i%cancelCheckInterval == 0 && i > 0 && token.Cancelled() {
			return nil, false, nil
		}
		if !members.Contains(uint32(n)) {
			out = append(out, n)
		}
	}
	return out, true, nil
}
