package mcpserver

import (
	"testing"

	"github.com/agentic-research/lsf/internal/graph"
	"github.com/stretchr/testify/require"
)

func TestResultsResolvePathsAndMetadata(t *testing.T) {
	g := graph.New("/data")
	root := g.RootNode()

	a, err := g.InsertChild(root, "a.txt", graph.SomeMetadata(graph.File, 64, 10, 20))
	require.NoError(t, err)
	d, err := g.InsertChild(root, "sub", graph.NoneMetadata(graph.Dir))
	require.NoError(t, err)

	results := Results(g, []graph.NodeId{a, d})
	require.Len(t, results, 2)
	require.Equal(t, "/data/a.txt", results[0].Path)
	require.Equal(t, "file", results[0].Type)
	require.EqualValues(t, 64, results[0].Size)
	require.EqualValues(t, 20, results[0].Modified)
	require.Equal(t, "/data/sub", results[1].Path)
	require.Equal(t, "dir", results[1].Type)
}

func TestResultsSkipRemovedNodes(t *testing.T) {
	g := graph.New("/data")
	a, err := g.InsertChild(g.RootNode(), "a.txt", graph.NoneMetadata(graph.File))
	require.NoError(t, err)
	g.Remove(a)

	require.Empty(t, Results(g, []graph.NodeId{a}))
}
