package materials

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Protocol-Lattice/go-tutor/src/concurrent"
	"github.com/Protocol-Lattice/go-tutor/src/embed"
	"github.com/Protocol-Lattice/go-tutor/src/index"
	"github.com/Protocol-Lattice/go-tutor/src/security"
)

// Indexer runs the upload pipeline: validate, extract, chunk, embed and
// index. Query and Delete work against the resulting per-material
// namespaces.
type Indexer struct {
	Store    MaterialStore
	Index    index.ChunkIndex
	Embedder embed.Embedder

	ChunkSize    int
	ChunkOverlap int
	TopK         int
	MaxBytes     int64
	MaxTextBytes int
	MinTextRunes int
	Workers      int
}

// NewIndexer wires an Indexer with the default parameters.
func NewIndexer(store MaterialStore, idx index.ChunkIndex, emb embed.Embedder) *Indexer {
	return &Indexer{
		Store:        store,
		Index:        idx,
		Embedder:     emb,
		ChunkSize:    500,
		ChunkOverlap: 50,
		TopK:         3,
		MaxBytes:     100 << 20,
		MaxTextBytes: 10 << 20,
		MinTextRunes: 10,
		Workers:      4,
	}
}

// Ingest processes one uploaded document end to end and returns the
// stored material record. On any failure after validation the material
// is kept with status failed and the causing error recorded; a material
// never becomes ready with zero chunks.
func (ix *Indexer) Ingest(ctx context.Context, userID, subject, filename string, data []byte) (*Material, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !security.AllowedExtension(ext) {
		return nil, fmt.Errorf("%w: extension %q not allowed", ErrValidation, ext)
	}
	if !security.ValidateSize(int64(len(data)), ix.MaxBytes) {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrValidation, ix.MaxBytes)
	}
	if !security.ValidateContent(data, ext) {
		return nil, fmt.Errorf("%w: content does not match extension %q", ErrValidation, ext)
	}

	m := &Material{
		ID:         uuid.NewString(),
		UserID:     userID,
		Subject:    subject,
		Filename:   filename,
		StoredName: security.SecureFilename(filename),
		SizeBytes:  int64(len(data)),
		SHA256:     security.HashBytes(data),
		Status:     StatusPending,
		UploadedAt: time.Now(),
	}
	if err := ix.Store.Save(ctx, m); err != nil {
		return nil, fmt.Errorf("save material: %w", err)
	}
	m.Status = StatusProcessing
	if err := ix.Store.Save(ctx, m); err != nil {
		return nil, fmt.Errorf("save material: %w", err)
	}

	process := func() error {
		text, pages, err := ExtractText(filename, data)
		if err != nil {
			return err
		}
		m.PageCount = pages
		if utf8.RuneCountInString(strings.TrimSpace(text)) < ix.MinTextRunes {
			return fmt.Errorf("%w: extracted text too short", ErrExtraction)
		}
		if ix.MaxTextBytes > 0 && len(text) > ix.MaxTextBytes {
			return fmt.Errorf("%w: extracted text exceeds %d bytes", ErrValidation, ix.MaxTextBytes)
		}

		pieces, err := ChunkWords(text, ix.ChunkSize, ix.ChunkOverlap)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if len(pieces) == 0 {
			return fmt.Errorf("%w: nothing to index", ErrExtraction)
		}

		vectors, err := concurrent.Map(ctx, pieces, ix.Workers, func(ctx context.Context, text string) ([]float32, error) {
			return ix.Embedder.Embed(ctx, text)
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEmbedding, err)
		}

		chunks := make([]index.Chunk, len(pieces))
		for i, text := range pieces {
			chunks[i] = index.Chunk{
				Ordinal: i,
				Text:    text,
				Vector:  vectors[i],
				Meta: map[string]string{
					"material_id": m.ID,
					"filename":    m.Filename,
					"subject":     m.Subject,
					"ordinal":     strconv.Itoa(i),
				},
			}
		}
		if err := ix.Index.Put(ctx, m.ID, chunks); err != nil {
			return fmt.Errorf("index chunks: %w", err)
		}
		m.ChunkCount = len(chunks)
		return nil
	}

	if err := process(); err != nil {
		m.Status = StatusFailed
		m.Error = err.Error()
		if saveErr := ix.Store.Save(ctx, m); saveErr != nil {
			log.Printf("material %s: save after failure: %v", m.ID, saveErr)
		}
		security.LogEvent("ingest_failed", userID, m.Filename)
		return m, err
	}

	m.Status = StatusReady
	if err := ix.Store.Save(ctx, m); err != nil {
		return nil, fmt.Errorf("save material: %w", err)
	}
	log.Printf("material %s: indexed %d chunks from %s", m.ID, m.ChunkCount, m.Filename)
	return m, nil
}

// Query retrieves the chunks of one material most similar to the
// question. An unknown or not-ready material yields no snippets.
func (ix *Indexer) Query(ctx context.Context, materialID, question string, topK int) ([]index.Snippet, error) {
	if topK <= 0 {
		topK = ix.TopK
	}
	vec, err := ix.Embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	return ix.Index.Search(ctx, materialID, vec, topK)
}

// Context joins the top snippets for a question into one prompt-ready
// block of study material.
func (ix *Indexer) Context(ctx context.Context, materialID, question string, topK int) (string, error) {
	snippets, err := ix.Query(ctx, materialID, question, topK)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(snippets))
	for i, s := range snippets {
		parts[i] = s.Text
	}
	return strings.Join(parts, "\n\n"), nil
}

// Delete removes the material's chunks and metadata. Deleting an
// unknown material is a no-op.
func (ix *Indexer) Delete(ctx context.Context, materialID string) error {
	if err := ix.Index.Drop(ctx, materialID); err != nil {
		return fmt.Errorf("drop chunks: %w", err)
	}
	if err := ix.Store.Delete(ctx, materialID); err != nil {
		return fmt.Errorf("delete material: %w", err)
	}
	return nil
}

// Get looks up one material record.
func (ix *Indexer) Get(ctx context.Context, materialID string) (*Material, error) {
	return ix.Store.Get(ctx, materialID)
}

// List returns the user's materials, optionally filtered by subject.
func (ix *Indexer) List(ctx context.Context, userID, subject string) ([]Material, error) {
	return ix.Store.List(ctx, userID, subject)
}
