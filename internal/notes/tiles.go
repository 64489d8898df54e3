package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kuitang/studynotes/internal/errs"
	"github.com/kuitang/studynotes/internal/highlight"
	"github.com/kuitang/studynotes/internal/obs"
)

const tileColumns = `id, note_id, title, content, position, highlights, created_at, updated_at`

// CreateTile adds a tile to a note. Without an explicit position the tile
// goes after the note's last tile.
func (s *Service) CreateTile(ctx context.Context, noteID string, params CreateTileParams) (*Tile, error) {
	if noteID == "" {
		return nil, errs.New(errs.InvalidArgument, "note ID is required")
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, errs.New(errs.InvalidArgument, "title is required")
	}
	if params.Position != nil && *params.Position < 0 {
		return nil, errs.New(errs.InvalidArgument, "position must be non-negative")
	}
	if err := CheckContentSize(params.Content); err != nil {
		return nil, err
	}

	tile := &Tile{
		ID:         uuid.NewString(),
		NoteID:     noteID,
		Title:      params.Title,
		Content:    params.Content,
		Highlights: []highlight.Highlight{},
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes WHERE id = ?`, noteID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check note existence: %w", err)
		}
		if exists == 0 {
			return errs.New(errs.NotFound, "note not found: "+noteID)
		}
		if err := s.checkGrowth(ctx, tx, 0, int64(len(params.Title)+len(params.Content))); err != nil {
			return err
		}

		if params.Position != nil {
			tile.Position = *params.Position
		} else if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM tiles WHERE note_id = ?`, noteID).Scan(&tile.Position); err != nil {
			return fmt.Errorf("failed to compute tile position: %w", err)
		}

		now := s.now()
		tile.CreatedAt, tile.UpdatedAt = now, now
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tiles (`+tileColumns+`) VALUES (?, ?, ?, ?, ?, '[]', ?, ?)`,
			tile.ID, noteID, tile.Title, tile.Content, tile.Position, now.Unix(), now.Unix())
		if err != nil {
			return fmt.Errorf("failed to create tile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	obs.From(ctx).Info("notes.tile_created", "note_id", noteID, "tile_id", tile.ID, "position", tile.Position)
	return tile, nil
}

// GetTile retrieves a tile by ID.
func (s *Service) GetTile(ctx context.Context, id string) (*Tile, error) {
	if id == "" {
		return nil, errs.New(errs.InvalidArgument, "tile ID is required")
	}
	tile, err := scanTile(s.db.QueryRowContext(ctx, `SELECT `+tileColumns+` FROM tiles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.NotFound, "tile not found: "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tile: %w", err)
	}
	return tile, nil
}

// ListTiles returns a note's tiles ordered by position.
func (s *Service) ListTiles(ctx context.Context, noteID string) ([]Tile, error) {
	if noteID == "" {
		return nil, errs.New(errs.InvalidArgument, "note ID is required")
	}
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes WHERE id = ?`, noteID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check note existence: %w", err)
	}
	if exists == 0 {
		return nil, errs.New(errs.NotFound, "note not found: "+noteID)
	}
	return s.listTiles(ctx, s.db, noteID)
}

func (s *Service) listTiles(ctx context.Context, q querier, noteID string) ([]Tile, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+tileColumns+` FROM tiles WHERE note_id = ? ORDER BY position, created_at`, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tiles: %w", err)
	}
	defer rows.Close()

	tiles := []Tile{}
	for rows.Next() {
		tile, err := scanTile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tile: %w", err)
		}
		tiles = append(tiles, *tile)
	}
	return tiles, rows.Err()
}

func (s *Service) allTiles(ctx context.Context) (map[string][]Tile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tileColumns+` FROM tiles ORDER BY note_id, position, created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tiles: %w", err)
	}
	defer rows.Close()

	byNote := make(map[string][]Tile)
	for rows.Next() {
		tile, err := scanTile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tile: %w", err)
		}
		byNote[tile.NoteID] = append(byNote[tile.NoteID], *tile)
	}
	return byNote, rows.Err()
}

// UpdateTile updates a tile with the same highlight rule as UpdateNote.
func (s *Service) UpdateTile(ctx context.Context, id string, params UpdateTileParams) (*Tile, error) {
	if id == "" {
		return nil, errs.New(errs.InvalidArgument, "tile ID is required")
	}
	if params.Title != nil && strings.TrimSpace(*params.Title) == "" {
		return nil, errs.New(errs.InvalidArgument, "title cannot be empty")
	}
	if params.Position != nil && *params.Position < 0 {
		return nil, errs.New(errs.InvalidArgument, "position must be non-negative")
	}
	if params.Content != nil {
		if err := CheckContentSize(*params.Content); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *Tile
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanTile(tx.QueryRowContext(ctx, `SELECT `+tileColumns+` FROM tiles WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return errs.New(errs.NotFound, "tile not found: "+id)
		}
		if err != nil {
			return fmt.Errorf("failed to read tile: %w", err)
		}

		next := *existing
		if params.Title != nil {
			next.Title = *params.Title
		}
		if params.Content != nil {
			next.Content = *params.Content
		}
		if params.Position != nil {
			next.Position = *params.Position
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
			`UPDATE tiles SET title = ?, content = ?, position = ?, highlights = ?, updated_at = ? WHERE id = ?`,
			next.Title, next.Content, next.Position, encoded, next.UpdatedAt.Unix(), id); err != nil {
			return fmt.Errorf("failed to update tile: %w", err)
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTile removes a tile and fires delete hooks for it.
func (s *Service) DeleteTile(ctx context.Context, id string) error {
	if id == "" {
		return errs.New(errs.InvalidArgument, "tile ID is required")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM tiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.New(errs.NotFound, "tile not found: "+id)
	}
	obs.From(ctx).Info("notes.tile_deleted", "tile_id", id)
	s.fireDelete(ctx, id)
	return nil
}

func scanTile(row scanner) (*Tile, error) {
	var (
		t                  Tile
		hs                 string
		created, updatedAt int64
	)
	if err := row.Scan(&t.ID, &t.NoteID, &t.Title, &t.Content, &t.Position, &hs, &created, &updatedAt); err != nil {
		return nil, err
	}
	highlights, err := decodeHighlights(hs)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", t.ID, err)
	}
	t.Highlights = highlights
	t.CreatedAt = time.Unix(created, 0).UTC()
	t.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &t, nil
}
