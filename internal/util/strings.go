package util

import "strings"

// Excerpt collapses whitespace and cuts s to at most n runes, marking the cut with "…".
func Excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
