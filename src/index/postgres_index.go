package index

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresIndex implements ChunkIndex on Postgres + pgvector.
type PostgresIndex struct {
	DB *pgxpool.Pool
}

// NewPostgresIndex connects to Postgres and returns a pgvector-backed index.
func NewPostgresIndex(ctx context.Context, connStr string) (*PostgresIndex, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return &PostgresIndex{DB: db}, nil
}

// CreateSchema bootstraps the pgvector extension and the chunk table.
func (px *PostgresIndex) CreateSchema(ctx context.Context) error {
	if px == nil || px.DB == nil {
		return nil
	}
	_, err := px.DB.Exec(ctx, `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS material_chunks (
			id          BIGSERIAL PRIMARY KEY,
			material_id TEXT NOT NULL,
			ordinal     INT NOT NULL,
			content     TEXT NOT NULL,
			metadata    JSONB,
			embedding   VECTOR
		);
		CREATE INDEX IF NOT EXISTS material_chunks_material_idx ON material_chunks (material_id);
	`)
	return err
}

// Put replaces the material's chunks inside a single transaction, so readers
// never observe a half-written namespace.
func (px *PostgresIndex) Put(ctx context.Context, materialID string, chunks []Chunk) error {
	if px == nil || px.DB == nil {
		return nil
	}
	tx, err := px.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM material_chunks WHERE material_id = $1`, materialID); err != nil {
		return err
	}
	for _, ch := range chunks {
		metaJSON, _ := json.Marshal(ch.Meta)
		vec, _ := json.Marshal(ch.Vector) // pgvector accepts the JSON array form
		_, err := tx.Exec(ctx, `
			INSERT INTO material_chunks (material_id, ordinal, content, metadata, embedding)
			VALUES ($1, $2, $3, $4::jsonb, $5::vector)
		`, materialID, ch.Ordinal, ch.Text, string(metaJSON), string(vec))
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (px *PostgresIndex) Search(ctx context.Context, materialID string, query []float32, topK int) ([]Snippet, error) {
	if px == nil || px.DB == nil || topK <= 0 {
		return nil, nil
	}
	vec, _ := json.Marshal(query)
	rows, err := px.DB.Query(ctx, `
		SELECT content, metadata::text, (embedding <=> $2::vector) AS distance
		FROM material_chunks
		WHERE material_id = $1
		ORDER BY embedding <=> $2::vector
		LIMIT $3
	`, materialID, string(vec), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snippet
	for rows.Next() {
		var s Snippet
		var metaText string
		var distance float64
		if err := rows.Scan(&s.Text, &metaText, &distance); err != nil {
			return nil, err
		}
		s.Score = 1 - distance // cosine distance -> similarity
		if metaText != "" {
			_ = json.Unmarshal([]byte(metaText), &s.Meta)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (px *PostgresIndex) Drop(ctx context.Context, materialID string) error {
	if px == nil || px.DB == nil {
		return nil
	}
	_, err := px.DB.Exec(ctx, `DELETE FROM material_chunks WHERE material_id = $1`, materialID)
	return err
}

func (px *PostgresIndex) Count(ctx context.Context, materialID string) (int, error) {
	if px == nil || px.DB == nil {
		return 0, nil
	}
	var n int
	err := px.DB.QueryRow(ctx, `SELECT COUNT(*) FROM material_chunks WHERE material_id = $1`, materialID).Scan(&n)
	return n, err
}

// Close releases the connection pool.
func (px *PostgresIndex) Close() {
	if px != nil && px.DB != nil {
		px.DB.Close()
	}
}
