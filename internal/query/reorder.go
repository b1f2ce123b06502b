package query

// ReorderAnd walks expr and, within every And node, moves metadata-requiring
// filters (size, date, and typed File/Folder filters) after name-producing
// terms, so the cheap name-pool scan runs first and the filter step sees
// the smallest possible working set. Order within each group is preserved
// (a stable partition), and nested And/Or/Not subtrees are reordered
// recursively.
func ReorderAnd(expr Expr) Expr {
	switch e := expr.(type) {
	case And:
		parts := make([]Expr, len(e.Parts))
		for i, p := range e.Parts {
			parts[i] = ReorderAnd(p)
		}
		return And{Parts: stablePartition(parts)}
	case Or:
		parts := make([]Expr, len(e.Parts))
		for i, p := range e.Parts {
			parts[i] = ReorderAnd(p)
		}
		return Or{Parts: parts}
	case Not:
		return Not{Inner: ReorderAnd(e.Inner)}
	default:
		return expr
	}
}

func stablePartition(parts []Expr) []Expr {
	out := make([]Expr, 0, len(parts))
	var deferred []Expr
	for _, p := range parts {
		if requiresMetadata(p) {
			deferred = append(deferred, p)
		} else {
			out = append(out, p)
		}
	}
	return append(out, deferred...)
}

func requiresMetadata(e Expr) bool {
	switch v := e.(type) {
	case Not:
		return requiresMetadata(v.Inner)
	case Term:
		if v.Kind != TermFilter {
			return false
		}
		switch v.Filter.Kind {
		case FilterSizeComparison, FilterSizeRange, FilterSizeKeyword,
			FilterDateModified, FilterDateCreated, FilterFile, FilterFolder,
			FilterTypeCategory:
			return true
		default:
			return false
		}
	default:
		return false
	}
}
