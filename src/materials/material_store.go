package materials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// MaterialStore keeps material metadata. Chunk vectors live in the
// chunk index, not here.
type MaterialStore interface {
	Save(ctx context.Context, m *Material) error
	Get(ctx context.Context, id string) (*Material, error)
	List(ctx context.Context, userID, subject string) ([]Material, error)
	Delete(ctx context.Context, id string) error
}

// InMemoryMaterialStore is the test and single-run backend.
type InMemoryMaterialStore struct {
	mu        sync.RWMutex
	materials map[string]Material
}

func NewInMemoryMaterialStore() *InMemoryMaterialStore {
	return &InMemoryMaterialStore{materials: make(map[string]Material)}
}

func (s *InMemoryMaterialStore) Save(ctx context.Context, m *Material) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials[m.ID] = *m
	return nil
}

func (s *InMemoryMaterialStore) Get(ctx context.Context, id string) (*Material, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.materials[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *InMemoryMaterialStore) List(ctx context.Context, userID, subject string) ([]Material, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Material
	for _, m := range s.materials {
		if m.UserID == userID && (subject == "" || m.Subject == subject) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func (s *InMemoryMaterialStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.materials, id)
	return nil
}

// SQLiteMaterialStore persists material metadata in SQLite.
type SQLiteMaterialStore struct {
	db *sqlx.DB
}

func NewSQLiteMaterialStore(path string) (*SQLiteMaterialStore, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS materials (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			subject TEXT NOT NULL,
			filename TEXT NOT NULL,
			stored_name TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			sha256 TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			page_count INTEGER NOT NULL DEFAULT 0,
			chunk_count INTEGER NOT NULL DEFAULT 0,
			uploaded_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create materials table: %w", err)
	}
	return &SQLiteMaterialStore{db: db}, nil
}

func (s *SQLiteMaterialStore) Save(ctx context.Context, m *Material) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO materials (id, user_id, subject, filename, stored_name, size_bytes,
			sha256, status, error, page_count, chunk_count, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			page_count = excluded.page_count,
			chunk_count = excluded.chunk_count`,
		m.ID, m.UserID, m.Subject, m.Filename, m.StoredName, m.SizeBytes,
		m.SHA256, m.Status, m.Error, m.PageCount, m.ChunkCount, m.UploadedAt)
	if err != nil {
		return fmt.Errorf("save material: %w", err)
	}
	return nil
}

func (s *SQLiteMaterialStore) Get(ctx context.Context, id string) (*Material, error) {
	var m Material
	err := s.db.GetContext(ctx, &m, `SELECT * FROM materials WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load material: %w", err)
	}
	return &m, nil
}

func (s *SQLiteMaterialStore) List(ctx context.Context, userID, subject string) ([]Material, error) {
	var out []Material
	var err error
	if subject == "" {
		err = s.db.SelectContext(ctx, &out,
			`SELECT * FROM materials WHERE user_id = ? ORDER BY uploaded_at`, userID)
	} else {
		err = s.db.SelectContext(ctx, &out,
			`SELECT * FROM materials WHERE user_id = ? AND subject = ? ORDER BY uploaded_at`, userID, subject)
	}
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return out, nil
}

func (s *SQLiteMaterialStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM materials WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete material: %w", err)
	}
	return nil
}

func (s *SQLiteMaterialStore) Close() error {
	return s.db.Close()
}
