package providers

import (
	"context"
	"sort"
	"strings"
)

// stopWords sind häufige englische Füllwörter, die als Keywords nutzlos sind.
var stopWords = map[string]bool{
	"and": true, "or": true, "with": true, "for": true, "this": true, "a": true,
	"an": true, "the": true, "is": true, "are": true, "i": true, "you": true,
	"he": true, "she": true, "it": true, "we": true, "they": true, "what": true,
	"how": true, "where": true, "which": true, "who": true, "why": true,
	"because": true, "but": true, "however": true, "although": true,
	"want": true, "need": true, "make": true, "do": true, "get": true,
	"have": true, "give": true, "take": true,
}

// FallbackExtractor extrahiert Keywords rein lokal über Worthäufigkeiten.
// Er dient als Ersatz auf dem Abfragepfad, wenn das Modell nicht erreichbar ist.
type FallbackExtractor struct {
	MaxKeywords int
}

// NewFallbackExtractor erstellt eine neue Instanz des Fallback-Extractors.
func NewFallbackExtractor(maxKeywords int) *FallbackExtractor {
	return &FallbackExtractor{MaxKeywords: maxKeywords}
}

// Name gibt den Namen des Extractors zurück.
func (f *FallbackExtractor) Name() string {
	return "fallback"
}

// ExtractKeywords liefert die häufigsten Nicht-Stoppwörter des Textes.
func (f *FallbackExtractor) ExtractKeywords(_ context.Context, text string) ([]string, error) {
	counts := map[string]int{}
	var order []string

	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:()[]{}\"'-")
		if len(word) <= 2 || stopWords[word] {
			continue
		}
		if _, seen := counts[word]; !seen {
			order = append(order, word)
		}
		counts[word]++
	}

	// Nach Häufigkeit sortieren; bei Gleichstand entscheidet die Erstnennung.
	firstSeen := make(map[string]int, len(order))
	for i, w := range order {
		firstSeen[w] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		return firstSeen[order[i]] < firstSeen[order[j]]
	})

	max := f.MaxKeywords
	if max <= 0 {
		max = 5
	}
	if len(order) > max {
		order = order[:max]
	}
	return order, nil
}
