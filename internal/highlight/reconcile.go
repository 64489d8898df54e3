package highlight

// Reconcile moves each previous highlight to the occurrence of its word in
// content that is closest to its old index, dropping highlights whose word
// no longer occurs.
//
// Ties go to the smaller index. An occurrence claimed by one highlight is
// unavailable to the highlights after it, so two highlights never land on
// the same token. Ids and relative order are preserved.
//
// The match is positional only. A word that moved far, or that occurs many
// times after a reorder, can attach to a different occurrence than the one
// the user meant.
func Reconcile(content string, previous []Highlight) []Highlight {
	occurrences := make(map[string][]int)
	for _, tok := range Tokenize(content) {
		w := Normalize(tok.Text)
		occurrences[w] = append(occurrences[w], tok.Index)
	}

	out := make([]Highlight, 0, len(previous))
	for _, h := range previous {
		word := Normalize(h.Word)
		candidates := occurrences[word]
		if len(candidates) == 0 {
			continue
		}

		best := 0
		for i := 1; i < len(candidates); i++ {
			if absDiff(candidates[i], h.Index) < absDiff(candidates[best], h.Index) {
				best = i
			}
		}

		out = append(out, Highlight{Word: word, Index: candidates[best], ID: h.ID})
		occurrences[word] = append(candidates[:best:best], candidates[best+1:]...)
	}
	return out
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
