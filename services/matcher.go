package services

// Score berechnet die Jaccard-Ähnlichkeit zweier Keyword-Sets:
// |Schnittmenge| / |Vereinigung|, also symmetrisch und in [0,1]. Ist eines der
// Sets leer, ist der Score 0. Die Eingaben werden als normalisierte Sets
// behandelt; doppelte Einträge zählen nicht mehrfach.
func Score(query, target []string) float64 {
	if len(query) == 0 || len(target) == 0 {
		return 0
	}

	querySet := make(map[string]bool, len(query))
	for _, kw := range query {
		querySet[kw] = true
	}

	targetSet := make(map[string]bool, len(target))
	intersection := 0
	for _, kw := range target {
		if targetSet[kw] {
			continue
		}
		targetSet[kw] = true
		if querySet[kw] {
			intersection++
		}
	}

	union := len(querySet) + len(targetSet) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
