package cmd

import (
	"testing"
	"time"

	"github.com/agentic-research/lsf/internal/query"
	"github.com/stretchr/testify/require"
)

func TestCompileEmptyQuery(t *testing.T) {
	expr, err := compileQuery("   ")
	require.NoError(t, err)
	require.IsType(t, query.Empty{}, expr)
}

func TestCompileSingleWord(t *testing.T) {
	expr, err := compileQuery("report")
	require.NoError(t, err)
	term, ok := expr.(query.Term)
	require.True(t, ok)
	require.Equal(t, query.TermWord, term.Kind)
	require.Equal(t, "report", term.Text)
}

func TestCompileImplicitAnd(t *testing.T) {
	expr, err := compileQuery("report ext:txt")
	require.NoError(t, err)
	and, ok := expr.(query.And)
	require.True(t, ok)
	require.Len(t, and.Parts, 2)

	filter := and.Parts[1].(query.Term)
	require.Equal(t, query.TermFilter, filter.Kind)
	require.Equal(t, query.FilterExt, filter.Filter.Kind)
	require.Equal(t, []string{"txt"}, filter.Filter.Extensions)
}

func TestCompileNegation(t *testing.T) {
	expr, err := compileQuery("!ext:txt")
	require.NoError(t, err)
	not, ok := expr.(query.Not)
	require.True(t, ok)
	inner := not.Inner.(query.Term)
	require.Equal(t, query.FilterExt, inner.Filter.Kind)
}

func TestCompileExtensionList(t *testing.T) {
	expr, err := compileQuery("ext:jpg;png;gif")
	require.NoError(t, err)
	term := expr.(query.Term)
	require.Equal(t, []string{"jpg", "png", "gif"}, term.Filter.Extensions)
}

func TestCompileSizeForms(t *testing.T) {
	cases := []struct {
		in     string
		kind   query.FilterKind
		verify func(t *testing.T, f query.Filter)
	}{
		{"size:empty", query.FilterSizeKeyword, func(t *testing.T, f query.Filter) {
			require.Equal(t, "empty", f.SizeKeyword)
		}},
		{"size:1kb", query.FilterSizeComparison, func(t *testing.T, f query.Filter) {
			require.Equal(t, query.CmpEq, f.Op)
			require.EqualValues(t, 1024, f.SizeValue)
		}},
		{"size:>1kb", query.FilterSizeComparison, func(t *testing.T, f query.Filter) {
			require.Equal(t, query.CmpGt, f.Op)
		}},
		{"size:<=2mb", query.FilterSizeComparison, func(t *testing.T, f query.Filter) {
			require.Equal(t, query.CmpLe, f.Op)
			require.EqualValues(t, 2*1024*1024, f.SizeValue)
		}},
		{"size:1kb..1mb", query.FilterSizeRange, func(t *testing.T, f query.Filter) {
			require.EqualValues(t, 1024, *f.RangeStartSize)
			require.EqualValues(t, 1024*1024, *f.RangeEndSize)
		}},
		{"size:..10kb", query.FilterSizeRange, func(t *testing.T, f query.Filter) {
			require.Nil(t, f.RangeStartSize)
			require.EqualValues(t, 10*1024, *f.RangeEndSize)
		}},
	}
	for _, tc := range cases {
		expr, err := compileQuery(tc.in)
		require.NoError(t, err, tc.in)
		term := expr.(query.Term)
		require.Equal(t, tc.kind, term.Filter.Kind, tc.in)
		tc.verify(t, term.Filter)
	}
}

func TestCompileDateForms(t *testing.T) {
	expr, err := compileQuery("dm:2024-01-01-2024-01-10")
	require.NoError(t, err)
	f := expr.(query.Term).Filter
	require.Equal(t, query.FilterDateModified, f.Kind)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local), *f.RangeStartDate)
	require.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.Local), *f.RangeEndDate)

	expr, err = compileQuery("dm:!=2024-01-05")
	require.NoError(t, err)
	f = expr.(query.Term).Filter
	require.Equal(t, query.CmpNe, f.Op)

	expr, err = compileQuery("dc:pastweek")
	require.NoError(t, err)
	f = expr.(query.Term).Filter
	require.Equal(t, query.FilterDateCreated, f.Kind)
	require.Equal(t, "pastweek", f.DateKeyword)
}

func TestCompilePathFilters(t *testing.T) {
	expr, err := compileQuery("infolder:/srv/data")
	require.NoError(t, err)
	f := expr.(query.Term).Filter
	require.Equal(t, query.FilterInFolder, f.Kind)
	require.Equal(t, "/srv/data", f.Path)

	_, err = compileQuery("parent:")
	require.Error(t, err)
}

func TestCompileTypeCategory(t *testing.T) {
	expr, err := compileQuery("type:picture")
	require.NoError(t, err)
	f := expr.(query.Term).Filter
	require.Equal(t, query.FilterTypeCategory, f.Kind)
	require.Equal(t, "picture", f.Category)

	_, err = compileQuery("type:")
	require.Error(t, err)
}

func TestCompileBareCategoryKeys(t *testing.T) {
	expr, err := compileQuery("audio:")
	require.NoError(t, err)
	f := expr.(query.Term).Filter
	require.Equal(t, query.FilterTypeCategory, f.Kind)
	require.Equal(t, "audio", f.Category)

	// A value narrows the category by name: audio:song ≡ song AND audio:.
	expr, err = compileQuery("exe:install")
	require.NoError(t, err)
	and := expr.(query.And)
	require.Len(t, and.Parts, 2)
	word := and.Parts[0].(query.Term)
	require.Equal(t, query.TermWord, word.Kind)
	require.Equal(t, "install", word.Text)
	require.Equal(t, "exe", and.Parts[1].(query.Term).Filter.Category)
}

func TestCompileUnknownKeyIsAWord(t *testing.T) {
	expr, err := compileQuery("notes:2024")
	require.NoError(t, err)
	term := expr.(query.Term)
	require.Equal(t, query.TermWord, term.Kind)
	require.Equal(t, "notes:2024", term.Text)
}

func TestCompileBadSizeErrors(t *testing.T) {
	_, err := compileQuery("size:banana")
	require.Error(t, err)
}
