package notes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kuitang/studynotes/internal/clock"
	"github.com/kuitang/studynotes/internal/db"
	"github.com/kuitang/studynotes/internal/errs"
	"github.com/kuitang/studynotes/internal/highlight"
	"github.com/kuitang/studynotes/internal/obs"
)

// DeleteHook runs after a note or tile is removed, once per removed owner id.
type DeleteHook func(ctx context.Context, ownerID string) error

// Service handles note, tile and highlight persistence.
type Service struct {
	db           *sql.DB
	clock        clock.Clock
	ids          highlight.IDGenerator
	storageLimit int64

	// mu serializes read-modify-write cycles on highlight arrays.
	mu sync.Mutex

	hooksMu sync.RWMutex
	hooks   []DeleteHook
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithIDGenerator sets the highlight id source.
func WithIDGenerator(ids highlight.IDGenerator) Option {
	return func(s *Service) { s.ids = ids }
}

// WithStorageLimit caps total stored bytes. 0 means unlimited.
func WithStorageLimit(limit int64) Option {
	return func(s *Service) { s.storageLimit = limit }
}

// NewService creates a notes service over d.
func NewService(d *db.DB, opts ...Option) *Service {
	s := &Service{
		db:           d.SQL(),
		clock:        clock.Real{},
		ids:          highlight.UUIDGenerator{},
		storageLimit: DefaultStorageLimitBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnDelete registers a hook fired for every removed note and tile.
func (s *Service) OnDelete(hook DeleteHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *Service) fireDelete(ctx context.Context, ownerIDs ...string) {
	s.hooksMu.RLock()
	hooks := append([]DeleteHook(nil), s.hooks...)
	s.hooksMu.RUnlock()

	for _, id := range ownerIDs {
		for _, hook := range hooks {
			if err := hook(ctx, id); err != nil {
				obs.From(ctx).Warn("notes.delete_hook_failed", "owner_id", id, "error", err)
			}
		}
	}
}

// Usage returns current storage usage.
func (s *Service) Usage(ctx context.Context) (StorageUsageInfo, error) {
	total, err := s.totalSize(ctx, s.db)
	if err != nil {
		return StorageUsageInfo{}, err
	}
	return NewStorageUsageInfo(total, s.storageLimit), nil
}

func (s *Service) totalSize(ctx context.Context, q querier) (int64, error) {
	var total int64
	err := q.QueryRowContext(ctx, `
		SELECT
			(SELECT COALESCE(SUM(length(CAST(title AS BLOB)) + length(CAST(content AS BLOB))), 0) FROM notes) +
			(SELECT COALESCE(SUM(length(CAST(title AS BLOB)) + length(CAST(content AS BLOB))), 0) FROM tiles)`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to get storage usage: %w", err)
	}
	return total, nil
}

func (s *Service) checkGrowth(ctx context.Context, q querier, oldSize, newSize int64) error {
	if newSize <= oldSize || s.storageLimit <= 0 {
		return nil
	}
	total, err := s.totalSize(ctx, q)
	if err != nil {
		return err
	}
	return CheckStorageLimitForUpdate(total, oldSize, newSize, s.storageLimit)
}

// CreateNote creates a note positioned after the last note.
func (s *Service) CreateNote(ctx context.Context, params CreateNoteParams) (*Note, error) {
	if strings.TrimSpace(params.Title) == "" {
		return nil, errs.New(errs.InvalidArgument, "title is required")
	}
	if err := CheckContentSize(params.Content); err != nil {
		return nil, err
	}

	note := &Note{
		ID:         uuid.NewString(),
		Title:      params.Title,
		Content:    params.Content,
		Highlights: []highlight.Highlight{},
		Tiles:      []Tile{},
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkGrowth(ctx, tx, 0, int64(len(params.Title)+len(params.Content))); err != nil {
			return err
		}
		var pos int
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM notes`).Scan(&pos); err != nil {
			return fmt.Errorf("failed to compute note position: %w", err)
		}
		now := s.now()
		note.Position, note.CreatedAt, note.UpdatedAt = pos, now, now
		_, err := tx.ExecContext(ctx,
			`INSERT INTO notes (id, title, content, position, highlights, created_at, updated_at)
			 VALUES (?, ?, ?, ?, '[]', ?, ?)`,
			note.ID, note.Title, note.Content, pos, now.Unix(), now.Unix())
		if err != nil {
			return fmt.Errorf("failed to create note: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	obs.From(ctx).Info("notes.created", "note_id", note.ID, "position", note.Position)
	return note, nil
}

// GetNote retrieves a note with its tiles.
func (s *Service) GetNote(ctx context.Context, id string) (*Note, error) {
	if id == "" {
		return nil, errs.New(errs.InvalidArgument, "note ID is required")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, position, highlights, created_at, updated_at FROM notes WHERE id = ?`, id)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.NotFound, "note not found: "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read note: %w", err)
	}
	tiles, err := s.listTiles(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	note.Tiles = tiles
	return note, nil
}

// ListNotes returns every note ordered by position, tiles included.
func (s *Service) ListNotes(ctx context.Context) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, position, highlights, created_at, updated_at
		 FROM notes ORDER BY position, created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, *note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	rows.Close()

	byNote, err := s.allTiles(ctx)
	if err != nil {
		return nil, err
	}
	for i := range notes {
		if tiles, ok := byNote[notes[i].ID]; ok {
			notes[i].Tiles = tiles
		}
	}
	return notes, nil
}

// ListItems returns a preview of every note for listings.
func (s *Service) ListItems(ctx context.Context) ([]NoteListItem, error) {
	notes, err := s.ListNotes(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]NoteListItem, 0, len(notes))
	for _, n := range notes {
		items = append(items, NoteListItem{
			ID:         n.ID,
			Title:      n.Title,
			Preview:    ContentPreview(n.Content, PreviewWords),
			Highlights: len(n.Highlights),
			Tiles:      len(n.Tiles),
			UpdatedAt:  n.UpdatedAt,
		})
	}
	return items, nil
}

// UpdateNote updates an existing note. When the content changes and no
// highlights are supplied, stored highlights are reconciled against the new
// content.
func (s *Service) UpdateNote(ctx context.Context, id string, params UpdateNoteParams) (*Note, error) {
	if id == "" {
		return nil, errs.New(errs.InvalidArgument, "note ID is required")
	}
	if params.Title != nil && strings.TrimSpace(*params.Title) == "" {
		return nil, errs.New(errs.InvalidArgument, "title cannot be empty")
	}
	if params.Content != nil {
		if err := CheckContentSize(*params.Content); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *Note
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanNote(tx.QueryRowContext(ctx,
			`SELECT id, title, content, position, highlights, created_at, updated_at FROM notes WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return errs.New(errs.NotFound, "note not found: "+id)
		}
		if err != nil {
			return fmt.Errorf("failed to read note: %w", err)
		}

		next := *existing
		if params.Title != nil {
			next.Title = *params.Title
		}
		if params.Content != nil {
			next.Content = *params.Content
		}
		hs, err := s.nextHighlights(existing.Content, next.Content, existing.Highlights, params.Highlights)
		if err != nil {
			return err
		}
		next.Highlights = hs

		oldSize := int64(len(existing.Title) + len(existing.Content))
		newSize := int64(len(next.Title) + len(next.Content))
		if err := s.checkGrowth(ctx, tx, oldSize, newSize); err != nil {
			return err
		}

		encoded, err := encodeHighlights(next.Highlights)
		if err != nil {
			return err
		}
		next.UpdatedAt = s.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE notes SET title = ?, content = ?, highlights = ?, updated_at = ? WHERE id = ?`,
			next.Title, next.Content, encoded, next.UpdatedAt.Unix(), id); err != nil {
			return fmt.Errorf("failed to update note: %w", err)
		}
		tiles, err := s.listTiles(ctx, tx, id)
		if err != nil {
			return err
		}
		next.Tiles = tiles
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// nextHighlights decides the highlight array that accompanies an update.
func (s *Service) nextHighlights(oldContent, newContent string, current []highlight.Highlight, supplied *[]highlight.Highlight) ([]highlight.Highlight, error) {
	if supplied != nil {
		return s.validateHighlights(*supplied)
	}
	if oldContent == newContent {
		return current, nil
	}
	return highlight.Reconcile(newContent, current), nil
}

// validateHighlights normalizes words and fills missing ids. Duplicate
// (word, index) pairs collapse to the first occurrence and its id.
func (s *Service) validateHighlights(hs []highlight.Highlight) ([]highlight.Highlight, error) {
	out := make([]highlight.Highlight, 0, len(hs))
	seen := make(map[highlight.Pair]bool, len(hs))
	for _, h := range hs {
		h.Word = highlight.Normalize(strings.TrimSpace(h.Word))
		if h.Word == "" {
			return nil, errs.New(errs.InvalidArgument, "highlight word is required")
		}
		if h.Index < 0 {
			return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("highlight index must be non-negative, got %d", h.Index))
		}
		if seen[h.Pair()] {
			continue
		}
		seen[h.Pair()] = true
		if h.ID == "" {
			h.ID = s.ids.New()
		}
		out = append(out, h)
	}
	return out, nil
}

// DeleteNote removes a note and its tiles, then fires delete hooks for the
// note and each removed tile.
func (s *Service) DeleteNote(ctx context.Context, id string) error {
	if id == "" {
		return errs.New(errs.InvalidArgument, "note ID is required")
	}

	var removed []string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM tiles WHERE note_id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to list tiles: %w", err)
		}
		var tileIDs []string
		for rows.Next() {
			var tileID string
			if err := rows.Scan(&tileID); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan tile id: %w", err)
			}
			tileIDs = append(tileIDs, tileID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to list tiles: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete note: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errs.New(errs.NotFound, "note not found: "+id)
		}
		removed = append([]string{id}, tileIDs...)
		return nil
	})
	if err != nil {
		return err
	}

	obs.From(ctx).Info("notes.deleted", "note_id", id, "tiles", len(removed)-1)
	s.fireDelete(ctx, removed...)
	return nil
}

// StrReplace performs exact string replacement in a note's content.
// When replaceAll is false, old_string must match exactly one location; returns
// ErrNoMatch if not found, ErrAmbiguousMatch if found multiple times.
// When replaceAll is true, replaces every occurrence (still returns ErrNoMatch if zero).
// Highlights are reconciled against the new content.
func (s *Service) StrReplace(ctx context.Context, id string, oldStr, newStr string, replaceAll bool) (*Note, *EditMetadata, error) {
	if id == "" {
		return nil, nil, errs.New(errs.InvalidArgument, "note ID is required")
	}
	if oldStr == "" {
		return nil, nil, errs.New(errs.InvalidArgument, "old_string is required")
	}

	note, err := s.GetNote(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	count := strings.Count(note.Content, oldStr)
	if count == 0 {
		return nil, nil, errs.Wrap(errs.InvalidArgument,
			ErrNoMatch.Error()+". Use note_view to see the current content.", ErrNoMatch)
	}
	if count > 1 && !replaceAll {
		return nil, nil, errs.Wrap(errs.InvalidArgument, fmt.Sprintf(
			"found %d matches of the string to replace, but replace_all is false. To replace all occurrences, set replace_all to true. To replace only one occurrence, provide more surrounding context to uniquely identify the instance.", count),
			ErrAmbiguousMatch)
	}

	firstMatchOffset := strings.Index(note.Content, oldStr)

	var newContent string
	replacementsMade := count
	if replaceAll {
		newContent = strings.ReplaceAll(note.Content, oldStr, newStr)
	} else {
		newContent = strings.Replace(note.Content, oldStr, newStr, 1)
		replacementsMade = 1
	}

	updated, err := s.UpdateNote(ctx, id, UpdateNoteParams{Content: &newContent})
	if err != nil {
		return nil, nil, err
	}

	meta := &EditMetadata{
		ReplacementsMade:     replacementsMade,
		FirstMatchByteOffset: firstMatchOffset,
		HighlightsBefore:     len(note.Highlights),
		HighlightsAfter:      len(updated.Highlights),
	}
	return updated, meta, nil
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Second)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Service) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(row scanner) (*Note, error) {
	var (
		n                  Note
		hs                 string
		created, updatedAt int64
	)
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &n.Position, &hs, &created, &updatedAt); err != nil {
		return nil, err
	}
	highlights, err := decodeHighlights(hs)
	if err != nil {
		return nil, fmt.Errorf("note %s: %w", n.ID, err)
	}
	n.Highlights = highlights
	n.Tiles = []Tile{}
	n.CreatedAt = time.Unix(created, 0).UTC()
	n.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &n, nil
}

func encodeHighlights(hs []highlight.Highlight) (string, error) {
	if hs == nil {
		hs = []highlight.Highlight{}
	}
	data, err := json.Marshal(hs)
	if err != nil {
		return "", fmt.Errorf("failed to encode highlights: %w", err)
	}
	return string(data), nil
}

func decodeHighlights(data string) ([]highlight.Highlight, error) {
	hs := []highlight.Highlight{}
	if data == "" {
		return hs, nil
	}
	if err := json.Unmarshal([]byte(data), &hs); err != nil {
		return nil, fmt.Errorf("failed to decode highlights: %w", err)
	}
	return hs, nil
}
