package services

import (
	"sort"
)

// Candidate ist ein bewerteter Empfehlungskandidat.
type Candidate struct {
	ID    uint
	Score float64
}

// Rank filtert Kandidaten unter minScore heraus, sortiert absteigend nach Score
// (bei Gleichstand aufsteigend nach ID, damit die Reihenfolge reproduzierbar ist)
// und kürzt auf maxResults. Eine leere Rückgabe ist kein Fehler.
func Rank(candidates []Candidate, minScore float64, maxResults int) []Candidate {
	ranked := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= minScore {
			ranked = append(ranked, c)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})

	if maxResults >= 0 && len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	return ranked
}
