package services

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize kanonisiert rohe Keyword-Strings für den Vergleich: Unicode-Folding,
// Kleinschreibung, Whitespace/Interpunktion an den Rändern entfernen, leere Tokens
// verwerfen, Duplikate über Set-Semantik kollabieren. Die Rückgabe ist sortiert,
// damit die Ausgabe deterministisch ist.
func Normalize(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	var out []string

	for _, token := range raw {
		token = normalizeToken(token)
		if token == "" || seen[token] {
			continue
		}
		seen[token] = true
		out = append(out, token)
	}

	sort.Strings(out)
	return out
}

// SplitKeywords zerlegt eine kommaseparierte Keyword-Liste (z.B. aus der API).
func SplitKeywords(s string) []string {
	return strings.Split(s, ",")
}

func normalizeToken(token string) string {
	// NFKD + Entfernen kombinierender Zeichen faltet Ligaturen und Akzente.
	var sb strings.Builder
	for _, r := range norm.NFKD.String(token) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		sb.WriteRune(unicode.ToLower(r))
	}

	return strings.TrimFunc(sb.String(), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}
