package content

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Ellipsis is appended to a title only when it was shortened.
const Ellipsis = "…"

// trailing separators dropped before the ellipsis
const separators = ",;:-–—|/、，；：。!！?？"

// TruncateTitle shortens title to at most limit displayed characters
// (runes), including the ellipsis. It cuts at the last whole-word boundary
// that fits; a Han character counts as a word of its own. When even the
// first word does not fit, the title is hard-cut so it is never empty.
// Titles that already fit are returned unchanged, which makes the
// function idempotent.
func TruncateTitle(title string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(title) <= limit {
		return title
	}
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) <= limit {
		return title
	}
	if limit == 1 {
		return Ellipsis
	}

	budget := limit - 1 // room left for the ellipsis
	cut := 0
	for i := budget; i > 0; i-- {
		if isBoundary(runes, i) {
			cut = i
			break
		}
	}

	kept := strings.TrimRightFunc(string(runes[:cut]), func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(separators, r)
	})
	if kept == "" {
		kept = strings.TrimRightFunc(string(runes[:budget]), unicode.IsSpace)
	}
	return kept + Ellipsis
}

// isBoundary reports whether a cut between runes[i-1] and runes[i] keeps
// whole words. i is in [1, len(runes)).
func isBoundary(runes []rune, i int) bool {
	prev, next := runes[i-1], runes[i]
	return isBreak(prev) || isBreak(next) || isHan(prev) || isHan(next)
}

func isBreak(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(separators, r)
}

func isHan(r rune) bool {
	return unicode.Is(unicode.Han, r)
}
