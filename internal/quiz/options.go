package quiz

import (
	"math/rand/v2"
	"slices"
)

// MaxDistractors is the number of wrong options offered with the correct
// word when the vocabulary allows it.
const MaxDistractors = 3

// Options returns the correct word plus up to MaxDistractors other words in
// random display order. Distractors are drawn without replacement from
// vocabulary (the highlighted words) first; when that runs short the rest
// come from fallback (the other words of the content). With fewer words
// available in total, every one of them is used.
func Options(rng *rand.Rand, vocabulary, fallback []string, correct string) []string {
	primary := distinctExcluding(vocabulary, correct)
	distractors := sample(rng, primary, MaxDistractors)

	if short := MaxDistractors - len(distractors); short > 0 {
		extra := distinctExcluding(fallback, correct)
		extra = slices.DeleteFunc(extra, func(w string) bool {
			return slices.Contains(primary, w)
		})
		distractors = append(distractors, sample(rng, extra, short)...)
	}

	options := append(distractors, correct)
	rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return options
}

// sample picks up to n words of pool without replacement. pool is reordered.
func sample(rng *rand.Rand, pool []string, n int) []string {
	n = min(n, len(pool))
	// Partial Fisher-Yates: the first n slots become the sample.
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return slices.Clone(pool[:n])
}

// distinctExcluding returns the sorted distinct words of words other than
// skip. Sorting makes sampling depend only on the rng, not on the order
// highlights were created.
func distinctExcluding(words []string, skip string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w != skip && w != "" {
			out = append(out, w)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
