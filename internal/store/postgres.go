package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned for lookups of missing designs.
var ErrNotFound = errors.New("store: not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateDesign(ctx context.Context, d Design) error {
	if len(d.Canvas) == 0 {
		d.Canvas = json.RawMessage(`{"layers":[]}`)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO designs (id, title, owner_name, canvas)
		VALUES ($1, $2, $3, $4)
	`, d.ID, d.Title, d.OwnerName, []byte(d.Canvas))
	if err != nil {
		return fmt.Errorf("insert design: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDesign(ctx context.Context, id string) (Design, error) {
	const query = `
		SELECT id, title, owner_name, canvas, created_at, updated_at
		FROM designs WHERE id = $1
	`
	var d Design
	var canvas []byte
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&d.ID, &d.Title, &d.OwnerName, &canvas, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Design{}, ErrNotFound
	}
	if err != nil {
		return Design{}, fmt.Errorf("get design: %w", err)
	}
	d.Canvas = canvas
	return d, nil
}

// ListDesigns returns designs newest-first, without their canvas payloads.
func (s *PostgresStore) ListDesigns(ctx context.Context, limit int) ([]Design, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, owner_name, created_at, updated_at
		FROM designs ORDER BY updated_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list designs: %w", err)
	}
	defer rows.Close()

	var designs []Design
	for rows.Next() {
		var d Design
		if err := rows.Scan(&d.ID, &d.Title, &d.OwnerName, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan design: %w", err)
		}
		designs = append(designs, d)
	}
	return designs, rows.Err()
}

// SaveCanvas is the explicit-save boundary: it replaces the stored canvas
// wholesale with whatever the editing client handed over.
func (s *PostgresStore) SaveCanvas(ctx context.Context, id string, canvas json.RawMessage) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE designs SET canvas = $2, updated_at = NOW() WHERE id = $1
	`, id, []byte(canvas))
	if err != nil {
		return fmt.Errorf("save canvas: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RenameDesign(ctx context.Context, id, title string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE designs SET title = $2, updated_at = NOW() WHERE id = $1
	`, id, title)
	if err != nil {
		return fmt.Errorf("rename design: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteDesign(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM designs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete design: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, c Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO design_comments (id, design_id, author_name, body, layer_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	`, c.ID, c.DesignID, c.AuthorName, c.Body, c.LayerID)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListComments(ctx context.Context, designID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, design_id, author_name, body, COALESCE(layer_id, ''), created_at
		FROM design_comments WHERE design_id = $1 ORDER BY created_at ASC
	`, designID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.DesignID, &c.AuthorName, &c.Body, &c.LayerID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
