package highlight

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Highlight is a marked token within one content body.
type Highlight struct {
	Word  string `json:"word"`
	Index int    `json:"index"`
	ID    string `json:"id"`
}

// Pair is the (word, index) address of a highlight. Within one content body
// no two highlights share a Pair.
type Pair struct {
	Word  string `json:"word"`
	Index int    `json:"index"`
}

// Pair returns the highlight's address.
func (h Highlight) Pair() Pair {
	return Pair{Word: h.Word, Index: h.Index}
}

// IDGenerator produces highlight ids.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }

// Toggle removes the highlight at (word, index) if one exists, otherwise
// appends a new one with a fresh UUID. The input slice is not modified.
func Toggle(existing []Highlight, word string, index int) []Highlight {
	return ToggleWith(UUIDGenerator{}, existing, word, index)
}

// ToggleWith is Toggle with an explicit id source.
func ToggleWith(ids IDGenerator, existing []Highlight, word string, index int) []Highlight {
	word = Normalize(word)
	out := make([]Highlight, 0, len(existing)+1)
	removed := false
	for _, h := range existing {
		if h.Word == word && h.Index == index {
			removed = true
			continue
		}
		out = append(out, h)
	}
	if removed {
		return out
	}
	return append(out, Highlight{Word: word, Index: index, ID: ids.New()})
}

// Contains reports whether a highlight exists at (word, index).
func Contains(hs []Highlight, word string, index int) bool {
	word = Normalize(word)
	for _, h := range hs {
		if h.Word == word && h.Index == index {
			return true
		}
	}
	return false
}

// Pairs returns the set of addresses in hs.
func Pairs(hs []Highlight) map[Pair]bool {
	set := make(map[Pair]bool, len(hs))
	for _, h := range hs {
		set[h.Pair()] = true
	}
	return set
}

// Vocabulary returns the distinct words of hs in first-seen order.
func Vocabulary(hs []Highlight) []string {
	seen := make(map[string]bool, len(hs))
	words := make([]string, 0, len(hs))
	for _, h := range hs {
		if seen[h.Word] {
			continue
		}
		seen[h.Word] = true
		words = append(words, h.Word)
	}
	return words
}

// AddTerms highlights each token of every term phrase at the phrase's first
// occurrence in content. Matching ignores case and leading/trailing
// punctuation; the stored word is the normalized token as it appears in the
// content so later reconciliation finds it. Existing highlights are kept and
// never toggled off.
func AddTerms(ids IDGenerator, existing []Highlight, content string, terms []string) []Highlight {
	tokens := Tokenize(content)
	bare := make([]string, len(tokens))
	for i, tok := range tokens {
		bare[i] = stripPunct(Normalize(tok.Text))
	}

	out := append([]Highlight(nil), existing...)
	have := Pairs(out)
	for _, term := range terms {
		words := strings.Fields(Normalize(term))
		for i := range words {
			words[i] = stripPunct(words[i])
		}
		start := findPhrase(bare, words)
		if start < 0 {
			continue
		}
		for i := range words {
			tok := tokens[start+i]
			p := Pair{Word: Normalize(tok.Text), Index: tok.Index}
			if have[p] {
				continue
			}
			have[p] = true
			out = append(out, Highlight{Word: p.Word, Index: p.Index, ID: ids.New()})
		}
	}
	return out
}

func findPhrase(haystack, phrase []string) int {
	if len(phrase) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(phrase) <= len(haystack); i++ {
		for j, w := range phrase {
			if w == "" || haystack[i+j] != w {
				continue outer
			}
		}
		return i
	}
	return -1
}

func stripPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
