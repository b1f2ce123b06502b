package mount

import (
	"os"
	"testing"

	"github.com/agentic-research/lsf/internal/control"
	"github.com/agentic-research/lsf/internal/graph"
	"github.com/agentic-research/lsf/internal/query"
	"github.com/stretchr/testify/require"
	"github.com/winfsp/cgofuse/fuse"
)

func resultGraph(t *testing.T) *graph.HotSwapGraph {
	t.Helper()
	g := graph.New("/data")
	root := g.RootNode()

	docs, err := g.InsertChild(root, "docs", graph.NoneMetadata(graph.Dir))
	require.NoError(t, err)
	_, err = g.InsertChild(docs, "report.txt", graph.NoneMetadata(graph.File))
	require.NoError(t, err)
	media, err := g.InsertChild(root, "media", graph.NoneMetadata(graph.Dir))
	require.NoError(t, err)
	_, err = g.InsertChild(media, "report.txt", graph.NoneMetadata(graph.File))
	require.NoError(t, err)
	_, err = g.InsertChild(media, "song.mp3", graph.NoneMetadata(graph.File))
	require.NoError(t, err)

	return graph.NewHotSwap(g)
}

func TestBuildEntriesDisambiguatesDuplicateNames(t *testing.T) {
	hot := resultGraph(t)

	entries, ok, err := BuildEntries(hot,
		query.Term{Kind: query.TermWord, Text: "report"},
		query.Options{}, control.NoopToken())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, entries, 2)

	names := []string{entries[0].Name, entries[1].Name}
	require.Contains(t, names, "report.txt")
	require.Contains(t, names, "report.txt~2")

	targets := map[string]bool{}
	for _, e := range entries {
		targets[e.Target] = true
	}
	require.True(t, targets["/data/docs/report.txt"])
	require.True(t, targets["/data/media/report.txt"])
}

func TestResultFSGetattrAndReaddir(t *testing.T) {
	fs := NewResultFS([]Entry{
		{Name: "a.txt", Target: "/data/a.txt"},
		{Name: "b.txt", Target: "/data/b.txt"},
	})

	var stat fuse.Stat_t
	require.Equal(t, 0, fs.Getattr("/", &stat, 0))
	require.EqualValues(t, fuse.S_IFDIR|0o555, stat.Mode)

	stat = fuse.Stat_t{}
	require.Equal(t, 0, fs.Getattr("/a.txt", &stat, 0))
	require.EqualValues(t, fuse.S_IFLNK|0o777, stat.Mode)
	require.EqualValues(t, len("/data/a.txt"), stat.Size)

	require.Equal(t, -fuse.ENOENT, fs.Getattr("/missing", &stat, 0))

	var listed []string
	fill := func(name string, _ *fuse.Stat_t, _ int64) bool {
		listed = append(listed, name)
		return true
	}
	require.Equal(t, 0, fs.Readdir("/", fill, 0, 0))
	require.Equal(t, []string{".", "..", "a.txt", "b.txt"}, listed)
}

func TestResultFSReadlink(t *testing.T) {
	fs := NewResultFS([]Entry{{Name: "a.txt", Target: "/data/a.txt"}})

	errc, target := fs.Readlink("/a.txt")
	require.Equal(t, 0, errc)
	require.Equal(t, "/data/a.txt", target)

	errc, _ = fs.Readlink("/nope")
	require.Equal(t, -fuse.ENOENT, errc)
}

func TestResultFSSetEntriesSwapsListing(t *testing.T) {
	fs := NewResultFS([]Entry{{Name: "old.txt", Target: "/data/old.txt"}})
	fs.SetEntries([]Entry{{Name: "new.txt", Target: "/data/new.txt"}})

	var stat fuse.Stat_t
	require.Equal(t, -fuse.ENOENT, fs.Getattr("/old.txt", &stat, 0))
	require.Equal(t, 0, fs.Getattr("/new.txt", &stat, 0))
}

func TestResultNFSListingAndReadlink(t *testing.T) {
	fs := NewResultNFS([]Entry{
		{Name: "b.txt", Target: "/data/b.txt"},
		{Name: "a.txt", Target: "/data/a.txt"},
	})

	infos, err := fs.ReadDir("/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	// NFS listing is name-sorted for client stability.
	require.Equal(t, "a.txt", infos[0].Name())
	require.Equal(t, "b.txt", infos[1].Name())
	require.NotZero(t, infos[0].Mode()&os.ModeSymlink)

	target, err := fs.Readlink("/a.txt")
	require.NoError(t, err)
	require.Equal(t, "/data/a.txt", target)

	_, err = fs.Readlink("/missing")
	require.Error(t, err)
}

func TestResultNFSIsReadOnly(t *testing.T) {
	fs := NewResultNFS(nil)

	_, err := fs.Create("x")
	require.Error(t, err)
	require.Error(t, fs.Remove("x"))
	require.Error(t, fs.Rename("x", "y"))
	require.Error(t, fs.MkdirAll("d", 0o755))
	require.Error(t, fs.Symlink("t", "l"))
}

func TestResultNFSOpenReadsThroughLink(t *testing.T) {
	real := t.TempDir() + "/payload.txt"
	require.NoError(t, os.WriteFile(real, []byte("hello"), 0o644))

	fs := NewResultNFS([]Entry{{Name: "payload.txt", Target: real}})
	f, err := fs.Open("/payload.txt")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	buf := make([]byte, 16)
	n, _ := f.Read(buf)
	require.Equal(t, "hello", string(buf[:n]))
}
