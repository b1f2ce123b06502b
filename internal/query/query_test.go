package query

import (
	"testing"

	"github.com/agentic-research/lsf/internal/control"
	"github.com/agentic-research/lsf/internal/graph"
	"github.com/stretchr/testify/require"
)

func buildFixture(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New("/root")
	root := g.RootNode()

	docs, err := g.InsertChild(root, "docs", graph.NoneMetadata(graph.Dir))
	require.NoError(t, err)
	_, err = g.InsertChild(docs, "readme.md", graph.SomeMetadata(graph.File, 1024, 1704067200, 1704067200))
	require.NoError(t, err)
	_, err = g.InsertChild(docs, "notes.txt", graph.SomeMetadata(graph.File, 10, 1704067200, 1704067200))
	require.NoError(t, err)

	src, err := g.InsertChild(root, "src", graph.NoneMetadata(graph.Dir))
	require.NoError(t, err)
	_, err = g.InsertChild(src, "main.go", graph.SomeMetadata(graph.File, 2048, 1704067200, 1704067200))
	require.NoError(t, err)

	return g
}

func wordTerm(text string) Expr { return Term{Kind: TermWord, Text: text} }

func TestEvaluateWordMatchesByName(t *testing.T) {
	g := buildFixture(t)
	nodes, ok, err := Evaluate(g, wordTerm("readme"), Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, nodes, 1)
	name, _ := g.NameOf(nodes[0])
	require.Equal(t, "readme.md", name)
}

func TestEvaluateAndIntersects(t *testing.T) {
	g := buildFixture(t)
	expr := And{Parts: []Expr{wordTerm("o"), Term{Kind: TermFilter, Filter: Filter{Kind: FilterFile}}}}
	nodes, ok, err := Evaluate(g, expr, Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	names := nameSet(t, g, nodes)
	require.NotContains(t, names, "readme.md") // no "o" in its name
	require.Contains(t, names, "main.go")
	require.Contains(t, names, "notes.txt")
	require.NotContains(t, names, "docs")
}

func TestEvaluateOrUnions(t *testing.T) {
	g := buildFixture(t)
	expr := Or{Parts: []Expr{wordTerm("readme"), wordTerm("main")}}
	nodes, ok, err := Evaluate(g, expr, Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	names := nameSet(t, g, nodes)
	require.ElementsMatch(t, []string{"readme.md", "main.go"}, names)
}

func TestEvaluateNotOverUniverse(t *testing.T) {
	g := buildFixture(t)
	expr := Not{Inner: wordTerm("readme")}
	nodes, ok, err := Evaluate(g, expr, Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	names := nameSet(t, g, nodes)
	require.NotContains(t, names, "readme.md")
	require.Contains(t, names, "main.go")
	require.Contains(t, names, "docs") // NOT over the universe includes directories too
}

func TestEvaluateAndWithNotThreadsAccumulator(t *testing.T) {
	g := buildFixture(t)
	extFilter := Term{Kind: TermFilter, Filter: Filter{Kind: FilterExt, Extensions: []string{"md", "go", "txt"}}}
	expr := And{Parts: []Expr{extFilter, Not{Inner: wordTerm("readme")}}}
	nodes, ok, err := Evaluate(g, expr, Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	names := nameSet(t, g, nodes)
	require.ElementsMatch(t, []string{"notes.txt", "main.go"}, names)
}

func TestOrPreservesFirstSeenOrder(t *testing.T) {
	g := buildFixture(t)

	// main.go was inserted after readme.md, so its node id is larger;
	// listing it first must keep it first in the union.
	expr := Or{Parts: []Expr{wordTerm("main"), wordTerm("readme")}}
	nodes, ok, err := Evaluate(g, expr, Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"main.go", "readme.md"}, nameSet(t, g, nodes))
}

func TestAndPreservesLeftOperandOrder(t *testing.T) {
	g := buildFixture(t)

	// The left operand produces ids out of ascending order; intersecting
	// with a filter must not re-sort them.
	left := Or{Parts: []Expr{wordTerm("main"), wordTerm("readme"), wordTerm("notes")}}
	fileFilter := Term{Kind: TermFilter, Filter: Filter{Kind: FilterFile}}
	expr := And{Parts: []Expr{left, fileFilter}}

	nodes, ok, err := Evaluate(g, expr, Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"main.go", "readme.md", "notes.txt"}, nameSet(t, g, nodes))
}

func TestCaseInsensitiveWordMatchesUppercaseName(t *testing.T) {
	g := graph.New("/root")
	root := g.RootNode()
	_, err := g.InsertChild(root, "README.md", graph.NoneMetadata(graph.File))
	require.NoError(t, err)
	_, err = g.InsertChild(root, "Makefile", graph.NoneMetadata(graph.File))
	require.NoError(t, err)

	nodes, ok, err := Evaluate(g, wordTerm("readme"), Options{CaseInsensitive: true}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"README.md"}, nameSet(t, g, nodes))

	// Case-sensitive mode still requires an exact-case substring.
	nodes, ok, err = Evaluate(g, wordTerm("readme"), Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, nodes)
}

func TestCaseInsensitiveMultiSegmentPhrase(t *testing.T) {
	g := graph.New("/root")
	src, err := g.InsertChild(g.RootNode(), "Src", graph.NoneMetadata(graph.Dir))
	require.NoError(t, err)
	_, err = g.InsertChild(src, "Main.GO", graph.NoneMetadata(graph.File))
	require.NoError(t, err)

	nodes, ok, err := Evaluate(g, wordTerm("src/main.go"), Options{CaseInsensitive: true}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"Main.GO"}, nameSet(t, g, nodes))
}

func TestTypeCategoryFilter(t *testing.T) {
	g := graph.New("/root")
	root := g.RootNode()
	_, err := g.InsertChild(root, "photo.JPG", graph.NoneMetadata(graph.File))
	require.NoError(t, err)
	_, err = g.InsertChild(root, "song.mp3", graph.NoneMetadata(graph.File))
	require.NoError(t, err)
	_, err = g.InsertChild(root, "pictures", graph.NoneMetadata(graph.Dir))
	require.NoError(t, err)

	pic := Term{Kind: TermFilter, Filter: Filter{Kind: FilterTypeCategory, Category: "picture"}}
	nodes, ok, err := Evaluate(g, pic, Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"photo.JPG"}, nameSet(t, g, nodes))

	audio := Term{Kind: TermFilter, Filter: Filter{Kind: FilterTypeCategory, Category: "audio"}}
	nodes, ok, err = Evaluate(g, audio, Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"song.mp3"}, nameSet(t, g, nodes))

	folder := Term{Kind: TermFilter, Filter: Filter{Kind: FilterTypeCategory, Category: "folder"}}
	nodes, ok, err = Evaluate(g, folder, Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, nameSet(t, g, nodes), "pictures")

	unknown := Term{Kind: TermFilter, Filter: Filter{Kind: FilterTypeCategory, Category: "holograms"}}
	_, _, err = Evaluate(g, unknown, Options{}, control.NoopToken())
	require.Error(t, err)
}

func TestSizeFilterBoundary(t *testing.T) {
	g := graph.New("/root")
	root := g.RootNode()
	_, err := g.InsertChild(root, "zero.bin", graph.SomeMetadata(graph.File, 0, 1, 1))
	require.NoError(t, err)
	_, err = g.InsertChild(root, "onekb.bin", graph.SomeMetadata(graph.File, 1024, 1, 1))
	require.NoError(t, err)
	_, err = g.InsertChild(root, "over.bin", graph.SomeMetadata(graph.File, 1025, 1, 1))
	require.NoError(t, err)

	eq := Term{Kind: TermFilter, Filter: Filter{Kind: FilterSizeComparison, Op: CmpEq, SizeValue: 1024}}
	nodes, ok, err := Evaluate(g, eq, Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	require.ElementsMatch(t, []string{"onekb.bin"}, nameSet(t, g, nodes))

	gt := Term{Kind: TermFilter, Filter: Filter{Kind: FilterSizeComparison, Op: CmpGt, SizeValue: 1024}}
	nodes, ok, err = Evaluate(g, gt, Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	require.ElementsMatch(t, []string{"over.bin"}, nameSet(t, g, nodes))

	le := Term{Kind: TermFilter, Filter: Filter{Kind: FilterSizeComparison, Op: CmpLe, SizeValue: 1024}}
	nodes, ok, err = Evaluate(g, le, Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	require.ElementsMatch(t, []string{"zero.bin", "onekb.bin"}, nameSet(t, g, nodes))

	empty := Term{Kind: TermFilter, Filter: Filter{Kind: FilterSizeKeyword, SizeKeyword: "empty"}}
	nodes, ok, err = Evaluate(g, empty, Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	require.ElementsMatch(t, []string{"zero.bin"}, nameSet(t, g, nodes))
}

func TestDateRangeFilter(t *testing.T) {
	g := graph.New("/root")
	root := g.RootNode()
	mk := func(name string, day string) {
		date, err := ParseDate(day)
		require.NoError(t, err)
		_, err = g.InsertChild(root, name, graph.SomeMetadata(graph.File, 1, uint32(date.Unix()), uint32(date.Unix())))
		require.NoError(t, err)
	}
	mk("a", "2024-01-01")
	mk("b", "2024-01-05")
	mk("c", "2024-01-10")
	mk("d", "2024-02-01")

	start, err := ParseDate("2024-01-01")
	require.NoError(t, err)
	end, err := ParseDate("2024-01-10")
	require.NoError(t, err)

	rangeFilter := Term{Kind: TermFilter, Filter: Filter{
		Kind:           FilterDateModified,
		RangeStartDate: &start,
		RangeEndDate:   &end,
	}}
	nodes, ok, err := Evaluate(g, rangeFilter, Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	require.ElementsMatch(t, []string{"a", "b", "c"}, nameSet(t, g, nodes))

	bDate, err := ParseDate("2024-01-05")
	require.NoError(t, err)
	neFilter := Term{Kind: TermFilter, Filter: Filter{
		Kind: FilterDateModified, Op: CmpNe, DateValue: bDate,
	}}
	nodes, ok, err = Evaluate(g, neFilter, Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	require.ElementsMatch(t, []string{"a", "c", "d"}, nameSet(t, g, nodes))
}

func TestExpandHomeDirsRewritesTildeWord(t *testing.T) {
	expr := wordTerm("~/code")
	expanded := ExpandHomeDirs(expr, "/Users/demo")
	term := expanded.(Term)
	require.Equal(t, "/Users/demo/code", term.Text)
}

func TestExpandHomeDirsLeavesNonPathFilterAlone(t *testing.T) {
	expr := Term{Kind: TermFilter, Filter: Filter{Kind: FilterExt, Extensions: []string{"~"}}}
	expanded := ExpandHomeDirs(expr, "/Users/demo").(Term)
	require.Equal(t, []string{"~"}, expanded.Filter.Extensions)
}

func TestExpandHomeDirsExpandsPathFilter(t *testing.T) {
	expr := Term{Kind: TermFilter, Filter: Filter{Kind: FilterInFolder, Path: "~/projects"}}
	expanded := ExpandHomeDirs(expr, "/Users/demo").(Term)
	require.Equal(t, "/Users/demo/projects", expanded.Filter.Path)
}

func TestReorderAndMovesMetadataFiltersLast(t *testing.T) {
	sizeFilter := Term{Kind: TermFilter, Filter: Filter{Kind: FilterSizeKeyword, SizeKeyword: "tiny"}}
	word := wordTerm("readme")
	expr := And{Parts: []Expr{sizeFilter, word}}

	reordered := ReorderAnd(expr).(And)
	require.Equal(t, word, reordered.Parts[0])
	require.Equal(t, sizeFilter, reordered.Parts[1])
}

func TestSearchCancellationReportsNotOk(t *testing.T) {
	g := buildFixture(t)
	issuerPath := t.TempDir() + "/ctrl"
	iss, err := control.OpenOrCreate(issuerPath, 1)
	require.NoError(t, err)
	defer iss.Close()

	tok := iss.Next()
	iss.Next() // cancels tok

	_, ok, err := Evaluate(g, wordTerm("readme"), Options{}, tok)
	require.NoError(t, err)
	require.False(t, ok)
}

func nameSet(t *testing.T, g *graph.Graph, nodes []graph.NodeId) []string {
	t.Helper()
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		name, ok := g.NameOf(n)
		require.True(t, ok)
		out = append(out, name)
	}
	return out
}
