package notes

import (
	"errors"
	"time"

	"github.com/kuitang/studynotes/internal/highlight"
)

// Error sentinels for str_replace operations
var (
	// ErrNoMatch is returned when old_string is not found in note content
	ErrNoMatch = errors.New("string to replace not found in note")

	// ErrAmbiguousMatch is returned when old_string matches multiple locations
	ErrAmbiguousMatch = errors.New("found multiple matches of the string to replace")
)

// Note is a titled content body with ordered tiles.
type Note struct {
	ID         string                `json:"id"`
	Title      string                `json:"title"`
	Content    string                `json:"content"`
	Position   int                   `json:"position"`
	Highlights []highlight.Highlight `json:"highlights"`
	Tiles      []Tile                `json:"tiles"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Tile is a content body scoped under a note.
type Tile struct {
	ID         string                `json:"id"`
	NoteID     string                `json:"note_id"`
	Title      string                `json:"title"`
	Content    string                `json:"content"`
	Position   int                   `json:"position"`
	Highlights []highlight.Highlight `json:"highlights"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// CreateNoteParams contains parameters for creating a note
type CreateNoteParams struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdateNoteParams contains parameters for updating a note.
// Fields are optional (pointer to distinguish empty from omitted). When
// Content changes and Highlights is omitted, stored highlights are
// reconciled against the new content.
type UpdateNoteParams struct {
	Title      *string                `json:"title,omitempty"`
	Content    *string                `json:"content,omitempty"`
	Highlights *[]highlight.Highlight `json:"highlights,omitempty"`
}

// CreateTileParams contains parameters for creating a tile.
// Position defaults to after the note's last tile.
type CreateTileParams struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Position *int   `json:"position,omitempty"`
}

// UpdateTileParams contains parameters for updating a tile, with the same
// reconcile rule as UpdateNoteParams.
type UpdateTileParams struct {
	Title      *string                `json:"title,omitempty"`
	Content    *string                `json:"content,omitempty"`
	Position   *int                   `json:"position,omitempty"`
	Highlights *[]highlight.Highlight `json:"highlights,omitempty"`
}

// EditMetadata contains metadata about a str_replace operation
type EditMetadata struct {
	ReplacementsMade     int
	FirstMatchByteOffset int // byte offset of the first replacement in the NEW content
	HighlightsBefore     int
	HighlightsAfter      int
}

// NoteListItem represents a note in a list with preview instead of full content
type NoteListItem struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Preview    string    `json:"preview"`
	Highlights int       `json:"highlights"`
	Tiles      int       `json:"tiles"`
	UpdatedAt  time.Time `json:"updated_at"`
}
