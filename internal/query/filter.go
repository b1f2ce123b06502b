package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agentic-research/lsf/internal/control"
	"github.com/agentic-research/lsf/internal/graph"
	"github.com/agentic-research/lsf/internal/metadata"
)

// FilterKind discriminates the argument a Filter carries and how it is
// evaluated. NoSubfolders is a supplemented addition: the distilled
// spec's prose mentions it among path-typed filter arguments but its
// formal enum omits it, while query_preprocessor.rs's
// filter_requires_path lists it alongside Parent and InFolder.
type FilterKind int

const (
	FilterFile FilterKind = iota
	FilterFolder
	FilterExt
	FilterTypeCategory
	FilterParent
	FilterInFolder
	FilterNoSubfolders
	FilterSizeComparison
	FilterSizeRange
	FilterSizeKeyword
	FilterDateModified
	FilterDateCreated
)

// CompareOp is one of the six comparison operators size and date filters
// share.
type CompareOp int

const (
	CmpEq CompareOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

// Filter is the parsed argument payload of a filter term. Only the
// fields relevant to Kind are populated; this flat shape mirrors how the
// evaluator dispatches on Kind rather than modeling each variant as its
// own Go type, since the caller (the parser, out of this repo's scope)
// already knows which fields it filled in.
type Filter struct {
	Kind FilterKind

	// File / Folder: optional name phrase restricting the type match.
	NameArg    string
	HasNameArg bool

	// Ext: case-insensitive, dot-stripped extensions.
	Extensions []string

	// TypeCategory: one of the named categories (picture, audio, video,
	// doc, exe, archive, code, spreadsheet, presentation, pdf), or the
	// pure type predicates file/folder.
	Category string

	// Parent / InFolder / NoSubfolders: an absolute path, already
	// home-expanded by ExpandHomeDirs.
	Path string

	// SizeComparison / DateModified / DateCreated (comparison form).
	Op        CompareOp
	SizeValue uint64
	DateValue time.Time

	// SizeRange / date range form of DateModified / DateCreated.
	RangeStartSize *uint64
	RangeEndSize   *uint64
	RangeStartDate *time.Time
	RangeEndDate   *time.Time

	// SizeKeyword: one of empty/tiny/small/medium/large/huge/gigantic.
	SizeKeyword string

	// DateModified / DateCreated keyword form: one of today, yesterday,
	// thisweek, lastweek, thismonth, lastmonth, thisyear, lastyear,
	// pastweek, pastmonth, pastyear.
	DateKeyword string
}

func evaluateFilter(g *graph.Graph, f Filter, opts Options, token control.Token) ([]graph.NodeId, bool, error) {
	switch f.Kind {
	case FilterFile:
		return evaluateTypeFilter(g, graph.File, f, opts, token)
	case FilterFolder:
		return evaluateTypeFilter(g, graph.Dir, f, opts, token)
	case FilterExt:
		return evaluateExtensionFilter(g, f, token)
	case FilterTypeCategory:
		return evaluateTypeCategoryFilter(g, f, opts, token)
	case FilterParent:
		return evaluateParentFilter(g, f)
	case FilterInFolder:
		return evaluateInFolderFilter(g, f, token)
	case FilterNoSubfolders:
		return evaluateNoSubfoldersFilter(g, f)
	case FilterSizeComparison, FilterSizeRange, FilterSizeKeyword:
		return evaluateSizeFilter(g, f, token)
	case FilterDateModified, FilterDateCreated:
		return evaluateDateFilter(g, f, token)
	default:
		return nil, true, fmt.Errorf("query: filter kind %d is not supported", f.Kind)
	}
}

func evaluateTypeFilter(g *graph.Graph, ft graph.FileType, f Filter, opts Options, token control.Token) ([]graph.NodeId, bool, error) {
	var base []graph.NodeId
	var ok bool
	var err error
	if f.HasNameArg {
		base, ok, err = evaluatePhrase(g, f.NameArg, opts, token)
	} else {
		base, ok, err = searchEmpty(g, token)
	}
	if err != nil || !ok {
		return nil, ok, err
	}
	return filterNodes(base, token, func(n graph.NodeId) bool {
		node, exists := g.GetNode(n)
		return exists && node.Metadata.FileTypeHint() == ft
	})
}

func evaluateExtensionFilter(g *graph.Graph, f Filter, token control.Token) ([]graph.NodeId, bool, error) {
	if len(f.Extensions) == 0 {
		return nil, true, fmt.Errorf("query: ext filter requires at least one extension")
	}
	wanted := make(map[string]struct{}, len(f.Extensions))
	for _, e := range f.Extensions {
		wanted[normalizeExtension(e)] = struct{}{}
	}
	return matchExtensionSet(g, wanted, token)
}

// matchExtensionSet returns the regular files whose lowercased extension
// is in wanted; directories and symlinks are never matched.
func matchExtensionSet(g *graph.Graph, wanted map[string]struct{}, token control.Token) ([]graph.NodeId, bool, error) {
	base, ok, err := searchEmpty(g, token)
	if err != nil || !ok {
		return nil, ok, err
	}
	return filterNodes(base, token, func(n graph.NodeId) bool {
		node, exists := g.GetNode(n)
		if !exists || node.Metadata.FileTypeHint() != graph.File {
			return false
		}
		name, ok := g.NameOf(n)
		if !ok {
			return false
		}
		ext, ok := extensionOf(name)
		if !ok {
			return false
		}
		_, want := wanted[ext]
		return want
	})
}

// typeCategoryExtensions is the category→extension-set table behind
// type:picture and friends, case-folded on both sides at match time.
var typeCategoryExtensions = map[string][]string{
	"picture":      {"jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff", "webp", "heic", "svg", "ico"},
	"audio":        {"mp3", "wav", "flac", "aac", "ogg", "m4a", "wma", "aiff", "opus"},
	"video":        {"mp4", "mkv", "avi", "mov", "wmv", "flv", "webm", "m4v", "mpg", "mpeg"},
	"doc":          {"doc", "docx", "odt", "rtf", "txt", "md", "tex", "pages"},
	"exe":          {"exe", "msi", "bat", "cmd", "com", "app", "sh", "bin"},
	"archive":      {"zip", "tar", "gz", "bz2", "xz", "7z", "rar", "zst", "tgz", "iso"},
	"code":         {"go", "rs", "c", "h", "cpp", "hpp", "py", "js", "ts", "java", "rb", "swift", "kt", "cs", "php", "sql", "html", "css", "hcl", "yaml", "yml", "json", "toml"},
	"spreadsheet":  {"xls", "xlsx", "ods", "csv", "numbers"},
	"presentation": {"ppt", "pptx", "odp", "key"},
	"pdf":          {"pdf"},
}

// evaluateTypeCategoryFilter translates a named category to its extension
// set intersected with is-a-regular-file; type:file and type:folder are
// pure type predicates. An unknown category is an error.
func evaluateTypeCategoryFilter(g *graph.Graph, f Filter, opts Options, token control.Token) ([]graph.NodeId, bool, error) {
	category := strings.ToLower(strings.TrimSpace(f.Category))
	switch category {
	case "file":
		return evaluateTypeFilter(g, graph.File, f, opts, token)
	case "folder":
		return evaluateTypeFilter(g, graph.Dir, f, opts, token)
	}

	exts, known := typeCategoryExtensions[category]
	if !known {
		return nil, true, fmt.Errorf("query: unknown type category %q", f.Category)
	}
	wanted := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		wanted[e] = struct{}{}
	}
	return matchExtensionSet(g, wanted, token)
}

func evaluateParentFilter(g *graph.Graph, f Filter) ([]graph.NodeId, bool, error) {
	target, ok := g.NodeIndexForPath(f.Path)
	if !ok {
		return nil, true, fmt.Errorf("query: parent filter path %q is not found in file system", f.Path)
	}
	return g.ChildrenOf(target), true, nil
}

func evaluateInFolderFilter(g *graph.Graph, f Filter, token control.Token) ([]graph.NodeId, bool, error) {
	target, ok := g.NodeIndexForPath(f.Path)
	if !ok {
		return nil, true, fmt.Errorf("query: infolder filter path %q is not found in file system", f.Path)
	}
	sub, ok := g.Subtree(target, token)
	return sub, ok, nil
}

// evaluateNoSubfoldersFilter restricts to target's direct children whose
// own type is not a directory, i.e. "in this folder, but don't descend" —
// the supplemented filter kind grounded on query_preprocessor.rs's
// filter_requires_path listing NoSubfolders alongside Parent/InFolder.
func evaluateNoSubfoldersFilter(g *graph.Graph, f Filter) ([]graph.NodeId, bool, error) {
	target, ok := g.NodeIndexForPath(f.Path)
	if !ok {
		return nil, true, fmt.Errorf("query: nosubfolders filter path %q is not found in file system", f.Path)
	}
	children := g.ChildrenOf(target)
	out := make([]graph.NodeId, 0, len(children))
	for _, c := range children {
		node, exists := g.GetNode(c)
		if exists && node.Metadata.FileTypeHint() != graph.Dir {
			out = append(out, c)
		}
	}
	return out, true, nil
}

func filterNodes(nodes []graph.NodeId, token control.Token, predicate func(graph.NodeId) bool) ([]graph.NodeId, bool, error) {
	out := make([]graph.NodeId, 0, len(nodes))
	for i, n := range nodes {
		if i%cancelCheckInterval == 0 && token.Cancelled() {
			return nil, false, nil
		}
		if predicate(n) {
			out = append(out, n)
		}
	}
	return out, true, nil
}

func normalizeExtension(raw string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "."))
}

func extensionOf(name string) (string, bool) {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx+1 >= len(name) {
		return "", false
	}
	return strings.ToLower(name[idx+1:]), true
}

// --- size filters ---

// sizeKeywordRanges maps the fixed byte ranges §4.8 specifies. A nil
// bound means unbounded on that side.
var sizeKeywordRanges = map[string][2]*uint64{
	"empty":    {u64p(0), u64p(0)},
	"tiny":     {u64p(0), u64p(10 * 1024)},
	"small":    {u64p(10*1024 + 1), u64p(100 * 1024)},
	"medium":   {u64p(100*1024 + 1), u64p(1024 * 1024)},
	"large":    {u64p(1024*1024 + 1), u64p(16 * 1024 * 1024)},
	"huge":     {u64p(16*1024*1024 + 1), u64p(128 * 1024 * 1024)},
	"gigantic": {u64p(128*1024*1024 + 1), nil},
}

func u64p(v uint64) *uint64 { return &v }

func init() {
	sizeKeywordRanges["giant"] = sizeKeywordRanges["gigantic"]
}

func evaluateSizeFilter(g *graph.Graph, f Filter, token control.Token) ([]graph.NodeId, bool, error) {
	base, ok, err := searchEmpty(g, token)
	if err != nil || !ok {
		return nil, ok, err
	}

	var lo, hi *uint64
	var op CompareOp
	var cmpValue uint64
	useComparison := false

	switch f.Kind {
	case FilterSizeKeyword:
		bounds, known := sizeKeywordRanges[strings.ToLower(f.SizeKeyword)]
		if !known {
			return nil, true, fmt.Errorf("query: unknown size keyword %q", f.SizeKeyword)
		}
		lo, hi = bounds[0], bounds[1]
	case FilterSizeRange:
		lo, hi = f.RangeStartSize, f.RangeEndSize
		if lo != nil && hi != nil && *lo > *hi {
			return nil, true, fmt.Errorf("query: inverted size range %d..%d", *lo, *hi)
		}
	case FilterSizeComparison:
		useComparison = true
		op = f.Op
		cmpValue = f.SizeValue
	}

	return filterNodes(base, token, func(n graph.NodeId) bool {
		node, exists := g.GetNode(n)
		if !exists || node.Metadata.FileTypeHint() != graph.File {
			return false
		}
		_ = metadata.Ensure(g, n)
		node, exists = g.GetNode(n)
		if !exists {
			return false
		}
		size, known := node.Metadata.SizeHint()
		if !known {
			return false
		}
		if useComparison {
			return compareUint(size, op, cmpValue)
		}
		if lo != nil && size < *lo {
			return false
		}
		if hi != nil && size > *hi {
			return false
		}
		return true
	})
}

func compareUint(v uint64, op CompareOp, target uint64) bool {
	switch op {
	case CmpEq:
		return v == target
	case CmpNe:
		return v != target
	case CmpLt:
		return v < target
	case CmpLe:
		return v <= target
	case CmpGt:
		return v > target
	case CmpGe:
		return v >= target
	default:
		return false
	}
}

// ParseSize parses a size literal with a b/k/m/g/t/p unit suffix
// (case-insensitive, IEC 1024-based) and an optional fractional value,
// per §4.8.
func ParseSize(text string) (uint64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("query: empty size literal")
	}
	unitPos := len(text)
	for unitPos > 0 {
		c := text[unitPos-1]
		if c >= '0' && c <= '9' || c == '.' {
			break
		}
		unitPos--
	}
	numPart := text[:unitPos]
	unitPart := strings.ToLower(strings.TrimSpace(text[unitPos:]))

	value, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("query: invalid size literal %q: %w", text, err)
	}

	var multiplier float64 = 1
	switch {
	case unitPart == "" || unitPart == "b":
		multiplier = 1
	case strings.HasPrefix(unitPart, "k"):
		multiplier = 1024
	case strings.HasPrefix(unitPart, "m"):
		multiplier = 1024 * 1024
	case strings.HasPrefix(unitPart, "g"):
		multiplier = 1024 * 1024 * 1024
	case strings.HasPrefix(unitPart, "t"):
		multiplier = 1024 * 1024 * 1024 * 1024
	case strings.HasPrefix(unitPart, "p"):
		multiplier = 1024 * 1024 * 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("query: unknown size unit %q", unitPart)
	}
	return uint64(value * multiplier), nil
}

// --- date filters ---

var dateLayouts = []string{"2006-01-02", "2006/01/02", "2006.01.02"}

// ParseDate parses a calendar day in any of the §4.8 date forms,
// returning local midnight on that day.
func ParseDate(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("query: unrecognized date %q", text)
}

func evaluateDateFilter(g *graph.Graph, f Filter, token control.Token) ([]graph.NodeId, bool, error) {
	base, ok, err := searchEmpty(g, token)
	if err != nil || !ok {
		return nil, ok, err
	}

	var lo, hi *time.Time
	var op CompareOp
	var cmpValue time.Time
	useComparison := false

	switch {
	case f.DateKeyword != "":
		start, end, kerr := dateKeywordRange(f.DateKeyword, time.Now())
		if kerr != nil {
			return nil, true, kerr
		}
		lo, hi = &start, &end
	case f.RangeStartDate != nil || f.RangeEndDate != nil:
		lo, hi = f.RangeStartDate, f.RangeEndDate
		if lo != nil && hi != nil && lo.After(*hi) {
			return nil, true, fmt.Errorf("query: inverted date range")
		}
		if hi != nil {
			endOfDay := endOfDay(*hi)
			hi = &endOfDay
		}
	default:
		useComparison = true
		op = f.Op
		cmpValue = f.DateValue
	}

	useCreated := f.Kind == FilterDateCreated

	return filterNodes(base, token, func(n graph.NodeId) bool {
		node, exists := g.GetNode(n)
		if !exists || node.Metadata.FileTypeHint() != graph.File {
			return false
		}
		_ = metadata.Ensure(g, n)
		node, exists = g.GetNode(n)
		if !exists {
			return false
		}
		created, modified, known := node.Metadata.Times()
		if !known {
			return false
		}
		var unixSecs uint32
		if useCreated {
			unixSecs = created
		} else {
			unixSecs = modified
		}
		ts := time.Unix(int64(unixSecs), 0)

		if useComparison {
			if op == CmpEq || op == CmpNe {
				sameDay := ts.Year() == cmpValue.Year() && ts.YearDay() == cmpValue.YearDay()
				if op == CmpEq {
					return sameDay
				}
				return !sameDay
			}
			return compareTime(ts, op, cmpValue)
		}
		if lo != nil && ts.Before(*lo) {
			return false
		}
		if hi != nil && ts.After(*hi) {
			return false
		}
		return true
	})
}

func compareTime(v time.Time, op CompareOp, target time.Time) bool {
	switch op {
	case CmpLt:
		return v.Before(target)
	case CmpLe:
		return v.Before(target) || v.Equal(target)
	case CmpGt:
		return v.After(target)
	case CmpGe:
		return v.After(target) || v.Equal(target)
	default:
		return false
	}
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// dateKeywordRange resolves a relative date keyword into an inclusive
// [start, end] window anchored at now, per §4.8's Monday-based week
// convention: lastweek is the calendar week immediately preceding the
// current one, pastweek is the trailing 7 days inclusive of today.
func dateKeywordRange(keyword string, now time.Time) (start, end time.Time, err error) {
	today := startOfDay(now)
	mondayOffset := (int(today.Weekday()) + 6) % 7 // Monday=0
	thisWeekStart := today.AddDate(0, 0, -mondayOffset)

	switch strings.ToLower(keyword) {
	case "today":
		return today, endOfDay(today), nil
	case "yesterday":
		y := today.AddDate(0, 0, -1)
		return y, endOfDay(y), nil
	case "thisweek":
		return thisWeekStart, endOfDay(today), nil
	case "lastweek":
		lastWeekStart := thisWeekStart.AddDate(0, 0, -7)
		lastWeekEnd := thisWeekStart.AddDate(0, 0, -1)
		return lastWeekStart, endOfDay(lastWeekEnd), nil
	case "thismonth":
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return start, endOfDay(today), nil
	case "lastmonth":
		firstOfThis := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		lastOfPrev := firstOfThis.AddDate(0, 0, -1)
		firstOfPrev := time.Date(lastOfPrev.Year(), lastOfPrev.Month(), 1, 0, 0, 0, 0, today.Location())
		return firstOfPrev, endOfDay(lastOfPrev), nil
	case "thisyear":
		start := time.Date(today.Year(), 1, 1, 0, 0, 0, 0, today.Location())
		return start, endOfDay(today), nil
	case "lastyear":
		start := time.Date(today.Year()-1, 1, 1, 0, 0, 0, 0, today.Location())
		end := time.Date(today.Year()-1, 12, 31, 0, 0, 0, 0, today.Location())
		return start, endOfDay(end), nil
	case "pastweek":
		return today.AddDate(0, 0, -6), endOfDay(today), nil
	case "pastmonth":
		return today.AddDate(0, 0, -29), endOfDay(today), nil
	case "pastyear":
		return today.AddDate(-1, 0, 1), endOfDay(today), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("query: unknown date keyword %q", keyword)
	}
}
