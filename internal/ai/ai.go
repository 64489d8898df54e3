// Package ai extracts key terms from note text and produces formatted
// study notes through a language model.
package ai

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/kuitang/studynotes/internal/errs"
)

// TextService is the language model surface used by the API.
type TextService interface {
	// ExtractTerms returns distinct lowercase key terms found in text.
	ExtractTerms(ctx context.Context, text string) ([]string, error)
	// Format returns sanitized HTML notes for text.
	Format(ctx context.Context, text string) (string, error)
}

// MaxInputBytes bounds the text sent to the model.
const MaxInputBytes = 64 * 1024

func validateInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return errs.New(errs.InvalidArgument, "text is required")
	}
	if len(text) > MaxInputBytes {
		return errs.New(errs.InvalidArgument, "text is too long")
	}
	return nil
}

// ParseTerms decodes a model reply of the form {"terms": [...]}. A bare JSON
// array is accepted too. Terms are trimmed, lowercased and deduplicated in
// reply order.
func ParseTerms(reply string) ([]string, error) {
	reply = strings.TrimSpace(reply)
	var raw []string

	if start, end := strings.IndexByte(reply, '{'), strings.LastIndexByte(reply, '}'); start >= 0 && end > start {
		var obj struct {
			Terms []string `json:"terms"`
		}
		if err := json.Unmarshal([]byte(reply[start:end+1]), &obj); err != nil {
			return nil, errs.Wrap(errs.Unavailable, "AI returned malformed terms", err)
		}
		raw = obj.Terms
	} else if start, end := strings.IndexByte(reply, '['), strings.LastIndexByte(reply, ']'); start >= 0 && end > start {
		if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
			return nil, errs.Wrap(errs.Unavailable, "AI returned malformed terms", err)
		}
	} else {
		return nil, errs.New(errs.Unavailable, "AI returned no terms")
	}

	return normalizeTerms(raw), nil
}

func normalizeTerms(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	terms := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.Join(strings.FieldsFunc(t, unicode.IsSpace), " "))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return terms
}
