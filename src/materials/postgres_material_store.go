package materials

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresMaterialStore persists material metadata in Postgres, sharing
// a database with the pgvector chunk index.
type PostgresMaterialStore struct {
	pool *pgxpool.Pool
}

func NewPostgresMaterialStore(ctx context.Context, dsn string) (*PostgresMaterialStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresMaterialStore{pool: pool}
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS materials (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			subject TEXT NOT NULL,
			filename TEXT NOT NULL,
			stored_name TEXT NOT NULL,
			size_bytes BIGINT NOT NULL,
			sha256 TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			page_count INTEGER NOT NULL DEFAULT 0,
			chunk_count INTEGER NOT NULL DEFAULT 0,
			uploaded_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create materials table: %w", err)
	}
	return s, nil
}

func (s *PostgresMaterialStore) Save(ctx context.Context, m *Material) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO materials (id, user_id, subject, filename, stored_name, size_bytes,
			sha256, status, error, page_count, chunk_count, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			page_count = EXCLUDED.page_count,
			chunk_count = EXCLUDED.chunk_count`,
		m.ID, m.UserID, m.Subject, m.Filename, m.StoredName, m.SizeBytes,
		m.SHA256, m.Status, m.Error, m.PageCount, m.ChunkCount, m.UploadedAt)
	if err != nil {
		return fmt.Errorf("save material: %w", err)
	}
	return nil
}

func (s *PostgresMaterialStore) Get(ctx context.Context, id string) (*Material, error) {
	var m Material
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, subject, filename, stored_name, size_bytes,
			sha256, status, error, page_count, chunk_count, uploaded_at
		 FROM materials WHERE id = $1`, id).Scan(
		&m.ID, &m.UserID, &m.Subject, &m.Filename, &m.StoredName, &m.SizeBytes,
		&m.SHA256, &m.Status, &m.Error, &m.PageCount, &m.ChunkCount, &m.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load material: %w", err)
	}
	return &m, nil
}

func (s *PostgresMaterialStore) List(ctx context.Context, userID, subject string) ([]Material, error) {
	query := `SELECT id, user_id, subject, filename, stored_name, size_bytes,
			sha256, status, error, page_count, chunk_count, uploaded_at
		 FROM materials WHERE user_id = $1`
	args := []any{userID}
	if subject != "" {
		query += ` AND subject = $2`
		args = append(args, subject)
	}
	query += ` ORDER BY uploaded_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	defer rows.Close()

	var out []Material
	for rows.Next() {
		var m Material
		err := rows.Scan(&m.ID, &m.UserID, &m.Subject, &m.Filename, &m.StoredName,
			&m.SizeBytes, &m.SHA256, &m.Status, &m.Error, &m.PageCount, &m.ChunkCount, &m.UploadedAt)
		if err != nil {
			return nil, fmt.Errorf("scan material: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresMaterialStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM materials WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete material: %w", err)
	}
	return nil
}

func (s *PostgresMaterialStore) Close() {
	s.pool.Close()
}
