package query

import (
	"regexp"
	"strings"
)

// segmentKind discriminates a plain-text matcher's anchor mode.
type segmentKind int

const (
	segmentSubstr segmentKind = iota
	segmentPrefix
	segmentSuffix
	segmentExact
)

// segmentMatcher is one unit query_segmentation breaks a phrase into: a
// plain anchored needle, or a compiled regex for a wildcard segment. When
// fold is set the needle is already lowercased and every compared name is
// folded too, so matching is symmetric — pool bytes keep their original
// case.
type segmentMatcher struct {
	kind   segmentKind
	needle string
	re     *regexp.Regexp
	fold   bool
}

func (m segmentMatcher) matches(name string) bool {
	if m.re != nil {
		return m.re.MatchString(name)
	}
	if m.fold {
		name = strings.ToLower(name)
	}
	switch m.kind {
	case segmentPrefix:
		return strings.HasPrefix(name, m.needle)
	case segmentSuffix:
		return strings.HasSuffix(name, m.needle)
	case segmentExact:
		return name == m.needle
	default:
		return strings.Contains(name, m.needle)
	}
}

// querySegmentation splits text on path separators into a chain of
// matchers: the first matcher searches the whole name pool, and each
// subsequent matcher restricts to children of the previous segment's
// matches, letting a query like "src/main.go" walk the tree instead of
// just matching a single name. A segment containing '*' or '?' compiles
// to a regex matcher via wildcardToRegex; a bare segment is a substring
// matcher, matching the distilled spec's default word mode.
//
// The originating query_segmentation crate was not present in the
// retrieved reference material; this is a from-spec reimplementation of
// its documented path-segmenting behavior, not a line-for-line port.
func querySegmentation(text string, caseInsensitive bool) []segmentMatcher {
	text = strings.Trim(text, "/\\")
	if text == "" {
		return nil
	}
	rawSegments := strings.FieldsFunc(text, func(r rune) bool {
		return r == '/' || r == '\\'
	})

	matchers := make([]segmentMatcher, 0, len(rawSegments))
	for _, seg := range rawSegments {
		if strings.ContainsAny(seg, "*?") {
			pattern := wildcardToRegex(seg)
			flags := ""
			if caseInsensitive {
				flags = "(?i)"
			}
			re, err := regexp.Compile(flags + pattern)
			if err != nil {
				continue
			}
			matchers = append(matchers, segmentMatcher{re: re})
			continue
		}
		needle := seg
		if caseInsensitive {
			needle = strings.ToLower(needle)
		}
		matchers = append(matchers, segmentMatcher{kind: segmentSubstr, needle: needle, fold: caseInsensitive})
	}
	return matchers
}

// wildcardToRegex translates a glob-style pattern ('*' any run, '?' any
// one rune) into an anchored regex, escaping every other rune literally.
func wildcardToRegex(pattern string) string {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return b.String()
}
