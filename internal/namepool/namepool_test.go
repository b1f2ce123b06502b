package namepool

import (
	"regexp"
	"testing"

	"github.com/agentic-research/lsf/internal/control"
	"github.com/stretchr/testify/require"
)

func names(t *testing.T, p *Pool, hits []InternedName) []string {
	t.Helper()
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		s, ok := p.Get(h)
		require.True(t, ok)
		out = append(out, s)
	}
	return out
}

func TestPushGetRoundTrip(t *testing.T) {
	p := New()
	h, err := p.Push("foo.txt")
	require.NoError(t, err)
	s, ok := p.Get(h)
	require.True(t, ok)
	require.Equal(t, "foo.txt", s)
}

func TestPushDedupesRepeatedNames(t *testing.T) {
	p := New()
	h1, err := p.Push("dup.txt")
	require.NoError(t, err)
	h2, err := p.Push("dup.txt")
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.Equal(t, 1, p.Len())
}

func TestPushDedupAcrossMultiset(t *testing.T) {
	p := New()
	input := []string{"a", "b", "a", "c", "b", "a"}
	distinct := map[string]struct{}{}
	for _, s := range input {
		_, err := p.Push(s)
		require.NoError(t, err)
		distinct[s] = struct{}{}
	}
	require.Equal(t, len(distinct), p.Len())
}

func TestPushEmptyString(t *testing.T) {
	p := New()
	h, err := p.Push("")
	require.NoError(t, err)
	s, ok := p.Get(h)
	require.True(t, ok)
	require.Equal(t, "", s)
}

func TestPushUnicodeName(t *testing.T) {
	p := New()
	h, err := p.Push("résumé.pdf")
	require.NoError(t, err)
	s, ok := p.Get(h)
	require.True(t, ok)
	require.Equal(t, "résumé.pdf", s)
}

func TestSearchSubstr(t *testing.T) {
	p := New()
	must(t, p, "foobar.txt")
	must(t, p, "bazfoo.rs")
	must(t, p, "qux.go")

	hits, ok := p.SearchSubstr("foo", control.NoopToken())
	require.True(t, ok)
	require.ElementsMatch(t, []string{"foobar.txt", "bazfoo.rs"}, names(t, p, hits))
}

func TestSearchSubstrNoMatch(t *testing.T) {
	p := New()
	must(t, p, "a.txt")
	hits, ok := p.SearchSubstr("zzz", control.NoopToken())
	require.True(t, ok)
	require.Empty(t, hits)
}

func TestSearchPrefix(t *testing.T) {
	p := New()
	must(t, p, "readme.md")
	must(t, p, "read.txt")
	must(t, p, "unrelated.go")

	hits, ok := p.SearchPrefix([]byte("read"), control.NoopToken())
	require.True(t, ok)
	require.ElementsMatch(t, []string{"readme.md", "read.txt"}, names(t, p, hits))
}

func TestSearchPrefixDoesNotMatchMidName(t *testing.T) {
	p := New()
	must(t, p, "unread.txt")
	hits, ok := p.SearchPrefix([]byte("read"), control.NoopToken())
	require.True(t, ok)
	require.Empty(t, hits, "prefix search must anchor to the name boundary, not match mid-name")
}

func TestSearchSuffix(t *testing.T) {
	p := New()
	must(t, p, "archive.tar.gz")
	must(t, p, "photo.jpg")
	must(t, p, "notes.txt")

	hits, ok := p.SearchSuffix([]byte(".gz"), control.NoopToken())
	require.True(t, ok)
	require.ElementsMatch(t, []string{"archive.tar.gz"}, names(t, p, hits))
}

func TestSearchExact(t *testing.T) {
	p := New()
	must(t, p, "foo")
	must(t, p, "foobar")
	must(t, p, "barfoo")

	hits, ok := p.SearchExact([]byte("foo"), control.NoopToken())
	require.True(t, ok)
	require.Len(t, hits, 1)
	require.Equal(t, []string{"foo"}, names(t, p, hits))
}

func TestSearchExactNonexistent(t *testing.T) {
	p := New()
	must(t, p, "foo")
	hits, ok := p.SearchExact([]byte("nope"), control.NoopToken())
	require.True(t, ok)
	require.Empty(t, hits)
}

func TestSearchRegex(t *testing.T) {
	p := New()
	must(t, p, "a1.txt")
	must(t, p, "a2.txt")
	must(t, p, "b1.txt")

	re := regexp.MustCompile(`^a\d\.txt$`)
	hits, ok := p.SearchRegex(re, control.NoopToken())
	require.True(t, ok)
	require.ElementsMatch(t, []string{"a1.txt", "a2.txt"}, names(t, p, hits))
}

func TestParallelSearchMatchesSerialSearch(t *testing.T) {
	p := New()
	for i := 0; i < 5000; i++ {
		must(t, p, randomishName(i))
	}
	must(t, p, "needle-marker-file.bin")

	serial, ok := p.SearchSubstr("needle-marker", control.NoopToken())
	require.True(t, ok)
	parallel, ok := p.ParSearchSubstr("needle-marker", control.NoopToken())
	require.True(t, ok)

	require.ElementsMatch(t, names(t, p, serial), names(t, p, parallel))
	require.Len(t, serial, 1)
}

// TestParallelSearchAcrossChunkBoundary deliberately builds a pool where a
// single target name is likely to straddle a chunk boundary under the
// implementation's chunk-size choice, then confirms it is found exactly
// once regardless.
func TestParallelSearchAcrossChunkBoundary(t *testing.T) {
	p := New()
	for i := 0; i < 4000; i++ {
		must(t, p, randomishName(i))
	}
	must(t, p, "boundary-straddling-needle-name.dat")
	for i := 4000; i < 8000; i++ {
		must(t, p, randomishName(i))
	}

	hits, ok := p.ParSearchSubstr("straddling-needle", control.NoopToken())
	require.True(t, ok)
	require.Len(t, hits, 1)
}

func TestSearchCancellation(t *testing.T) {
	p := New()
	for i := 0; i < 3; i++ {
		must(t, p, randomishName(i))
	}

	issuerPath := t.TempDir() + "/ctrl"
	iss, err := control.OpenOrCreate(issuerPath, 1)
	require.NoError(t, err)
	defer iss.Close()

	tok := iss.Next()
	iss.Next() // cancels tok

	_, ok := p.SearchSubstr("anything", tok)
	require.False(t, ok, "a cancelled search must report ok=false, distinct from an empty result")
}

func must(t *testing.T, p *Pool, name string) InternedName {
	t.Helper()
	h, err := p.Push(name)
	require.NoError(t, err)
	return h
}

func randomishName(i int) string {
	return "file-" + itoa(i) + ".dat"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}
