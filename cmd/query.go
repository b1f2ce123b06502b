package cmd

import (
	"fmt"
	"strings"

	"github.com/agentic-research/lsf/internal/query"
)

// compileQuery is the CLI's minimal query front: whitespace-separated
// terms are an implicit AND, a leading ! negates one term, and key:value
// terms map onto the evaluator's filter kinds. The full surface syntax
// (OR, grouping, precedence) belongs to an external parser; this front
// covers the shapes the REPL and the one-shot search need.
func compileQuery(text string) (query.Expr, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return query.Empty{}, nil
	}

	parts := make([]query.Expr, 0, len(fields))
	for _, field := range fields {
		negated := false
		for strings.HasPrefix(field, "!") {
			negated = !negated
			field = field[1:]
		}
		if field == "" {
			continue
		}
		term, err := compileTerm(field)
		if err != nil {
			return nil, err
		}
		if negated {
			term = query.Not{Inner: term}
		}
		parts = append(parts, term)
	}

	if len(parts) == 1 {
		return parts[0], nil
	}
	return query.And{Parts: parts}, nil
}

func compileTerm(field string) (query.Expr, error) {
	key, value, found := strings.Cut(field, ":")
	if !found {
		return query.Term{Kind: query.TermWord, Text: field}, nil
	}

	switch strings.ToLower(key) {
	case "regex":
		return query.Term{Kind: query.TermRegex, Text: value}, nil
	case "type":
		if value == "" {
			return nil, fmt.Errorf("type: requires a category argument")
		}
		return filterTerm(query.Filter{Kind: query.FilterTypeCategory, Category: value}), nil
	case "audio", "video", "doc", "exe":
		// Bare category keys: audio:song narrows the category by name.
		category := filterTerm(query.Filter{Kind: query.FilterTypeCategory, Category: key})
		if value == "" {
			return category, nil
		}
		return query.And{Parts: []query.Expr{
			query.Term{Kind: query.TermWord, Text: value},
			category,
		}}, nil
	case "ext":
		exts := strings.FieldsFunc(value, func(r rune) bool { return r == ';' || r == ',' })
		if len(exts) == 0 {
			return nil, fmt.Errorf("ext: requires at least one extension")
		}
		return filterTerm(query.Filter{Kind: query.FilterExt, Extensions: exts}), nil
	case "file":
		f := query.Filter{Kind: query.FilterFile}
		if value != "" {
			f.NameArg, f.HasNameArg = value, true
		}
		return filterTerm(f), nil
	case "folder":
		f := query.Filter{Kind: query.FilterFolder}
		if value != "" {
			f.NameArg, f.HasNameArg = value, true
		}
		return filterTerm(f), nil
	case "parent":
		return pathFilter(query.FilterParent, value)
	case "infolder":
		return pathFilter(query.FilterInFolder, value)
	case "nosubfolders":
		return pathFilter(query.FilterNoSubfolders, value)
	case "size":
		return compileSizeFilter(value)
	case "dm", "datemodified":
		return compileDateFilter(query.FilterDateModified, value)
	case "dc", "datecreated":
		return compileDateFilter(query.FilterDateCreated, value)
	default:
		// Not a recognized filter key; treat the whole field as a word
		// (filenames legitimately contain colons on some systems).
		return query.Term{Kind: query.TermWord, Text: field}, nil
	}
}

func filterTerm(f query.Filter) query.Expr {
	return query.Term{Kind: query.TermFilter, Filter: f}
}

func pathFilter(kind query.FilterKind, value string) (query.Expr, error) {
	if value == "" {
		return nil, fmt.Errorf("filter requires a path argument")
	}
	return filterTerm(query.Filter{Kind: kind, Path: value}), nil
}

var sizeKeywords = map[string]bool{
	"empty": true, "tiny": true, "small": true, "medium": true,
	"large": true, "huge": true, "gigantic": true, "giant": true,
}

func compileSizeFilter(value string) (query.Expr, error) {
	if value == "" {
		return nil, fmt.Errorf("size: requires an argument")
	}
	lower := strings.ToLower(value)
	if sizeKeywords[lower] {
		return filterTerm(query.Filter{Kind: query.FilterSizeKeyword, SizeKeyword: lower}), nil
	}

	if lo, hi, isRange := strings.Cut(value, ".."); isRange {
		f := query.Filter{Kind: query.FilterSizeRange}
		if lo != "" {
			v, err := query.ParseSize(lo)
			if err != nil {
				return nil, err
			}
			f.RangeStartSize = &v
		}
		if hi != "" {
			v, err := query.ParseSize(hi)
			if err != nil {
				return nil, err
			}
			f.RangeEndSize = &v
		}
		return filterTerm(f), nil
	}

	op, rest := splitCompareOp(value)
	v, err := query.ParseSize(rest)
	if err != nil {
		return nil, err
	}
	return filterTerm(query.Filter{Kind: query.FilterSizeComparison, Op: op, SizeValue: v}), nil
}

var dateKeywords = map[string]bool{
	"today": true, "yesterday": true, "thisweek": true, "lastweek": true,
	"thismonth": true, "lastmonth": true, "thisyear": true, "lastyear": true,
	"pastweek": true, "pastmonth": true, "pastyear": true,
}

func compileDateFilter(kind query.FilterKind, value string) (query.Expr, error) {
	if value == "" {
		return nil, fmt.Errorf("date filter requires an argument")
	}
	lower := strings.ToLower(value)
	if dateKeywords[lower] {
		return filterTerm(query.Filter{Kind: kind, DateKeyword: lower}), nil
	}

	// Range forms: 2024-01-01..2024-01-10 or 2024-01-01-2024-01-10 (both
	// dates are exactly ten characters in every accepted layout).
	if lo, hi, isRange := strings.Cut(value, ".."); isRange && lo != "" && hi != "" {
		return dateRange(kind, lo, hi)
	}
	if len(value) == 21 && value[10] == '-' {
		return dateRange(kind, value[:10], value[11:])
	}

	op, rest := splitCompareOp(value)
	day, err := query.ParseDate(rest)
	if err != nil {
		return nil, err
	}
	return filterTerm(query.Filter{Kind: kind, Op: op, DateValue: day}), nil
}

func dateRange(kind query.FilterKind, lo, hi string) (query.Expr, error) {
	start, err := query.ParseDate(lo)
	if err != nil {
		return nil, err
	}
	end, err := query.ParseDate(hi)
	if err != nil {
		return nil, err
	}
	return filterTerm(query.Filter{Kind: kind, RangeStartDate: &start, RangeEndDate: &end}), nil
}

func splitCompareOp(value string) (query.CompareOp, string) {
	switch {
	case strings.HasPrefix(value, ">="):
		return query.CmpGe, value[2:]
	case strings.HasPrefix(value, "<="):
		return query.CmpLe, value[2:]
	case strings.HasPrefix(value, "!="):
		return query.CmpNe, value[2:]
	case strings.HasPrefix(value, ">"):
		return query.CmpGt, value[1:]
	case strings.HasPrefix(value, "<"):
		return query.CmpLt, value[1:]
	case strings.HasPrefix(value, "="):
		return query.CmpEq, value[1:]
	default:
		return query.CmpEq, value
	}
}
