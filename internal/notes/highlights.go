package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kuitang/studynotes/internal/errs"
	"github.com/kuitang/studynotes/internal/highlight"
	"github.com/kuitang/studynotes/internal/obs"
)

// body is the highlightable part of a note or tile.
type body struct {
	table      string
	title      string
	content    string
	highlights []highlight.Highlight
}

// OwnerKind says whether an owner id names a note or a tile.
type OwnerKind string

const (
	OwnerNote OwnerKind = "note"
	OwnerTile OwnerKind = "tile"
)

// Owner is the highlightable body behind a note or tile id.
type Owner struct {
	ID         string                `json:"id"`
	Kind       OwnerKind             `json:"kind"`
	Title      string                `json:"title"`
	Content    string                `json:"content"`
	Highlights []highlight.Highlight `json:"highlights"`
}

// loadBody resolves ownerID against notes first, then tiles.
func loadBody(ctx context.Context, q querier, ownerID string) (*body, error) {
	if ownerID == "" {
		return nil, errs.New(errs.InvalidArgument, "owner ID is required")
	}
	for _, table := range []string{"notes", "tiles"} {
		var title, content, hs string
		err := q.QueryRowContext(ctx,
			`SELECT title, content, highlights FROM `+table+` WHERE id = ?`, ownerID).Scan(&title, &content, &hs)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", table, err)
		}
		highlights, err := decodeHighlights(hs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ownerID, err)
		}
		return &body{table: table, title: title, content: content, highlights: highlights}, nil
	}
	return nil, errs.New(errs.NotFound, "note or tile not found: "+ownerID)
}

// mutateHighlights applies fn to the owner's highlights and stores the result.
func (s *Service) mutateHighlights(ctx context.Context, ownerID string, fn func(b *body) ([]highlight.Highlight, error)) ([]highlight.Highlight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []highlight.Highlight
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		b, err := loadBody(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		next, err := fn(b)
		if err != nil {
			return err
		}
		encoded, err := encodeHighlights(next)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE `+b.table+` SET highlights = ?, updated_at = ? WHERE id = ?`,
			encoded, s.now().Unix(), ownerID); err != nil {
			return fmt.Errorf("failed to store highlights: %w", err)
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ToggleHighlight removes the highlight at (word, index) when present and
// adds one otherwise. Adding requires the token at index to be word.
func (s *Service) ToggleHighlight(ctx context.Context, ownerID, word string, index int) ([]highlight.Highlight, error) {
	word = highlight.Normalize(strings.TrimSpace(word))
	if word == "" {
		return nil, errs.New(errs.InvalidArgument, "word is required")
	}
	if index < 0 {
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("index must be non-negative, got %d", index))
	}

	hs, err := s.mutateHighlights(ctx, ownerID, func(b *body) ([]highlight.Highlight, error) {
		if !highlight.Contains(b.highlights, word, index) {
			tokens := highlight.Tokenize(b.content)
			if index >= len(tokens) {
				return nil, errs.New(errs.InvalidArgument, fmt.Sprintf(
					"index %d out of range: content has %d tokens", index, len(tokens)))
			}
			if got := highlight.Normalize(tokens[index].Text); got != word {
				return nil, errs.New(errs.InvalidArgument, fmt.Sprintf(
					"token %d is %q, not %q", index, got, word))
			}
		}
		return highlight.ToggleWith(s.ids, b.highlights, word, index), nil
	})
	if err != nil {
		return nil, err
	}
	obs.From(ctx).Debug("notes.highlight_toggled", "owner_id", ownerID, "word", word, "index", index, "count", len(hs))
	return hs, nil
}

// Highlights returns the owner's stored highlights.
func (s *Service) Highlights(ctx context.Context, ownerID string) ([]highlight.Highlight, error) {
	b, err := loadBody(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}
	return b.highlights, nil
}

// Owner resolves a note or tile id.
func (s *Service) Owner(ctx context.Context, ownerID string) (*Owner, error) {
	b, err := loadBody(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}
	kind := OwnerNote
	if b.table == "tiles" {
		kind = OwnerTile
	}
	return &Owner{ID: ownerID, Kind: kind, Title: b.title, Content: b.content, Highlights: b.highlights}, nil
}

// Body returns the owner's content and highlights.
func (s *Service) Body(ctx context.Context, ownerID string) (string, []highlight.Highlight, error) {
	b, err := loadBody(ctx, s.db, ownerID)
	if err != nil {
		return "", nil, err
	}
	return b.content, b.highlights, nil
}

// ApplyTerms highlights the first occurrence of every term phrase in the
// owner's content. Existing highlights are kept.
func (s *Service) ApplyTerms(ctx context.Context, ownerID string, terms []string) ([]highlight.Highlight, error) {
	hs, err := s.mutateHighlights(ctx, ownerID, func(b *body) ([]highlight.Highlight, error) {
		return highlight.AddTerms(s.ids, b.highlights, b.content, terms), nil
	})
	if err != nil {
		return nil, err
	}
	obs.From(ctx).Info("notes.terms_applied", "owner_id", ownerID, "terms", len(terms), "count", len(hs))
	return hs, nil
}
