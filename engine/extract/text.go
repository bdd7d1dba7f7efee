package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/WessleyAI/manualkg/engine/manual"
)

// trimPeriods collapses whitespace and strips trailing periods.
func trimPeriods(s string) string {
	return strings.TrimSpace(strings.TrimRight(manual.CollapseSpace(s), ". "))
}

// capitalize upper-cases the first rune and leaves the rest untouched.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// joinDesc joins description fragments with ". " and one final period.
func joinDesc(fragments ...[]string) string {
	var parts []string
	for _, list := range fragments {
		for _, f := range list {
			if f = trimPeriods(f); f != "" {
				parts = append(parts, f)
			}
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ". ") + "."
}

// joinText joins fragments with single spaces.
func joinText(fragments []string) string {
	return manual.CollapseSpace(strings.Join(fragments, " "))
}
