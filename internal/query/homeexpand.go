// ExpandHomeDirs and its helpers translate query_preprocessor.rs's tilde
// expansion: a leading ~ followed by / or \ (or standing alone) expands to
// $HOME, while ~ followed by anything else (e.g. ~someone) is left
// untouched. Quoted phrases and regex terms are never expanded.
package query

import (
	"os"
	"strings"
)

// ExpandHomeDirs rewrites word terms and path-typed filter arguments in
// expr, replacing a leading ~ with home. It returns expr unchanged if
// home is empty.
func ExpandHomeDirs(expr Expr, home string) Expr {
	if home == "" {
		return expr
	}
	return expandExpr(expr, home)
}

// HomeDir resolves the current user's home directory the same way the
// reference does: the HOME environment variable, absent any fallback.
func HomeDir() (string, bool) {
	home := os.Getenv("HOME")
	return home, home != ""
}

func expandExpr(e Expr, home string) Expr {
	switch v := e.(type) {
	case Empty:
		return v
	case Term:
		return expandTerm(v, home)
	case Not:
		return Not{Inner: expandExpr(v.Inner, home)}
	case And:
		parts := make([]Expr, len(v.Parts))
		for i, p := range v.Parts {
			parts[i] = expandExpr(p, home)
		}
		return And{Parts: parts}
	case Or:
		parts := make([]Expr, len(v.Parts))
		for i, p := range v.Parts {
			parts[i] = expandExpr(p, home)
		}
		return Or{Parts: parts}
	default:
		return e
	}
}

func expandTerm(t Term, home string) Term {
	switch t.Kind {
	case TermWord:
		t.Text = expandText(t.Text, home)
	case TermFilter:
		t.Filter = expandFilter(t.Filter, home)
	}
	return t
}

func expandFilter(f Filter, home string) Filter {
	if !filterRequiresPath(f.Kind) {
		return f
	}
	f.Path = expandText(f.Path, home)
	return f
}

// filterRequiresPath mirrors query_preprocessor.rs's filter_requires_path:
// only filters whose semantics take a filesystem path get expanded.
func filterRequiresPath(kind FilterKind) bool {
	switch kind {
	case FilterParent, FilterInFolder, FilterNoSubfolders:
		return true
	default:
		return false
	}
}

func expandText(value, home string) string {
	if expanded, ok := expandHomePrefix(value, home); ok {
		return expanded
	}
	return value
}

func expandHomePrefix(value, home string) (string, bool) {
	if !strings.HasPrefix(value, "~") {
		return "", false
	}
	remainder := value[1:]
	if remainder == "" {
		return home, true
	}
	switch remainder[0] {
	case '/', '\\':
		return home + remainder, true
	default:
		return "", false
	}
}
