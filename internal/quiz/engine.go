// Package quiz runs recall practice over a note's highlighted words.
//
// A Session is a value. Every transition returns a new Session and leaves
// the receiver untouched, so callers can keep, compare, or discard states
// freely. The Service keeps one live Session per owner and persists it
// while a quiz is in flight.
package quiz

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/kuitang/studynotes/internal/errs"
	"github.com/kuitang/studynotes/internal/highlight"
)

// Phase is the quiz state.
type Phase int

const (
	Inactive Phase = iota
	Active
	Finished
)

var phaseNames = [...]string{"inactive", "active", "finished"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	for i, name := range phaseNames {
		if string(b) == name {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown quiz phase %q", b)
}

// Stats counts answers. Total is always Correct + Wrong.
type Stats struct {
	Correct int `json:"correct"`
	Wrong   int `json:"wrong"`
	Total   int `json:"total"`
}

// Question is the open multiple-choice question for one highlight.
type Question struct {
	Word    string   `json:"word"`
	Index   int      `json:"index"`
	ID      string   `json:"id"`
	Options []string `json:"options"`
	Wrong   []string `json:"wrong"`
}

// Session is one owner's quiz state. Revealed holds the guessed highlights
// with their ids so progress can follow them when the content is edited.
type Session struct {
	Phase    Phase                 `json:"phase"`
	Revealed []highlight.Highlight `json:"revealed"`
	Stats    Stats                 `json:"stats"`
	Question *Question             `json:"question,omitempty"`
}

// Enable starts a fresh quiz. Enabling an active quiz changes nothing.
func (s Session) Enable() Session {
	if s.Phase == Active {
		return s
	}
	return Session{Phase: Active}
}

// Select opens a question for the highlight at (word, index) of content.
// The pair must be highlighted and not yet revealed. Selecting while another
// question is open replaces it.
func (s Session) Select(rng *rand.Rand, content string, highlights []highlight.Highlight, word string, index int) (Session, error) {
	if s.Phase != Active {
		return s, errs.New(errs.FailedPrecondition, "quiz is not active")
	}
	word = highlight.Normalize(word)
	if !highlight.Contains(highlights, word, index) {
		return s, errs.New(errs.InvalidArgument, fmt.Sprintf("%q at %d is not highlighted", word, index))
	}
	if s.IsRevealed(word, index) {
		return s, errs.New(errs.FailedPrecondition, fmt.Sprintf("%q at %d is already revealed", word, index))
	}

	next := s.clone()
	next.Question = &Question{
		Word:    word,
		Index:   index,
		ID:      highlightID(highlights, word, index),
		Options: Options(rng, highlight.Vocabulary(highlights), contentWords(content), word),
	}
	return next, nil
}

// Choose answers the open question. A correct option reveals the pair and
// closes the question; the quiz finishes once every highlight is revealed.
// A wrong option stays disabled for the rest of this question. The bool
// reports whether option was correct.
func (s Session) Choose(highlights []highlight.Highlight, option string) (Session, bool, error) {
	if s.Phase != Active {
		return s, false, errs.New(errs.FailedPrecondition, "quiz is not active")
	}
	if s.Question == nil {
		return s, false, errs.New(errs.FailedPrecondition, "no question is open")
	}
	q := s.Question
	if !slices.Contains(q.Options, option) {
		return s, false, errs.New(errs.InvalidArgument, fmt.Sprintf("%q is not an option", option))
	}
	if slices.Contains(q.Wrong, option) {
		return s, false, errs.New(errs.InvalidArgument, fmt.Sprintf("%q was already ruled out", option))
	}

	next := s.clone()
	next.Stats.Total++
	if option != q.Word {
		next.Stats.Wrong++
		next.Question.Wrong = append(next.Question.Wrong, option)
		return next, false, nil
	}

	next.Stats.Correct++
	next.Revealed = append(next.Revealed, highlight.Highlight{Word: q.Word, Index: q.Index, ID: q.ID})
	next.Question = nil
	if next.allRevealed(highlights) {
		next.Phase = Finished
	}
	return next, true, nil
}

// Reset clears progress. With retry the quiz restarts as Active, otherwise
// it disengages to Inactive.
func (s Session) Reset(retry bool) Session {
	if retry {
		return Session{Phase: Active}
	}
	return Session{}
}

// Disable leaves quiz mode.
func (s Session) Disable() Session {
	return Session{}
}

// IsRevealed reports whether (word, index) has been guessed.
func (s Session) IsRevealed(word string, index int) bool {
	return highlight.Contains(s.Revealed, highlight.Normalize(word), index)
}

// Follow carries progress over to the owner's current highlights after the
// content changed. A revealed highlight is matched by id and takes its new
// (word, index); one without an id must still be highlighted at its pair.
// Revealed highlights that no longer exist are dropped, and so is an open
// question whose highlight is gone. The quiz finishes when what remains
// is all revealed. The bool reports whether anything changed.
func (s Session) Follow(highlights []highlight.Highlight) (Session, bool) {
	if s.Phase != Active {
		return s, false
	}
	find := func(h highlight.Highlight) (highlight.Highlight, bool) {
		for _, cur := range highlights {
			if h.ID != "" && cur.ID == h.ID {
				return cur, true
			}
			if h.ID == "" && cur.Pair() == h.Pair() {
				return cur, true
			}
		}
		return highlight.Highlight{}, false
	}

	next := s.clone()
	changed := false
	next.Revealed = nil
	for _, r := range s.Revealed {
		cur, ok := find(r)
		if ok && !highlight.Contains(next.Revealed, cur.Word, cur.Index) {
			next.Revealed = append(next.Revealed, cur)
		}
		if !ok || cur != r {
			changed = true
		}
	}

	if q := next.Question; q != nil {
		cur, ok := find(highlight.Highlight{Word: q.Word, Index: q.Index, ID: q.ID})
		switch {
		case !ok || highlight.Contains(next.Revealed, cur.Word, cur.Index):
			next.Question = nil
			changed = true
		case cur.Word != q.Word || cur.Index != q.Index || cur.ID != q.ID:
			q.Word, q.Index, q.ID = cur.Word, cur.Index, cur.ID
			changed = true
		}
	}

	if next.allRevealed(highlights) {
		next.Phase = Finished
		changed = true
	}
	if !changed {
		return s, false
	}
	return next, true
}

// Obscured reports whether the highlight at (word, index) renders hidden:
// exactly when the quiz is active and the pair is not revealed.
func (s Session) Obscured(word string, index int) bool {
	return s.Phase == Active && !s.IsRevealed(word, index)
}

// allRevealed is false for an empty highlight set, so a quiz over nothing
// never finishes on its own.
func (s Session) allRevealed(highlights []highlight.Highlight) bool {
	if len(highlights) == 0 {
		return false
	}
	for _, h := range highlights {
		if !s.IsRevealed(h.Word, h.Index) {
			return false
		}
	}
	return true
}

func highlightID(hs []highlight.Highlight, word string, index int) string {
	for _, h := range hs {
		if h.Word == word && h.Index == index {
			return h.ID
		}
	}
	return ""
}

func contentWords(content string) []string {
	tokens := highlight.Tokenize(content)
	words := make([]string, len(tokens))
	for i, tok := range tokens {
		words[i] = highlight.Normalize(tok.Text)
	}
	return words
}

func (s Session) clone() Session {
	out := s
	out.Revealed = slices.Clone(s.Revealed)
	if s.Question != nil {
		q := *s.Question
		q.Options = slices.Clone(q.Options)
		q.Wrong = slices.Clone(q.Wrong)
		out.Question = &q
	}
	return out
}
