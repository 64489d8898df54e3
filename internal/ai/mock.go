package ai

import (
	"context"
	"html"
	"slices"
	"strings"
	"unicode"

	"github.com/kuitang/studynotes/internal/highlight"
)

// MockTerms is how many terms Mock extracts.
const MockTerms = 5

// Mock is a deterministic TextService for running without a model.
// Terms are the longest distinct words, ties broken alphabetically.
type Mock struct {
	// Err, when set, is returned by every call.
	Err error
}

func (m Mock) ExtractTerms(_ context.Context, text string) ([]string, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if err := validateInput(text); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var words []string
	for _, tok := range strings.Fields(highlight.PlainText(text)) {
		w := strings.ToLower(strings.TrimFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		}))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
	}
	slices.SortFunc(words, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	if len(words) > MockTerms {
		words = words[:MockTerms]
	}
	return normalizeTerms(words), nil
}

func (m Mock) Format(_ context.Context, text string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if err := validateInput(text); err != nil {
		return "", err
	}
	plain := highlight.PlainText(text)
	topic := plain
	if fields := strings.Fields(plain); len(fields) > 6 {
		topic = strings.Join(fields[:6], " ")
	}
	return RenderReply("<div><h1>Topic: " + html.EscapeString(topic) + "</h1><p>" +
		html.EscapeString(plain) + "</p></div>"), nil
}
