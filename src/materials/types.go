package materials

import (
	"errors"
	"time"
)

// Processing states of an uploaded material.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

var (
	// ErrValidation marks uploads rejected before any processing.
	ErrValidation = errors.New("material validation failed")
	// ErrExtraction marks files whose text could not be pulled out.
	ErrExtraction = errors.New("text extraction failed")
	// ErrEmbedding marks failures while vectorizing chunks.
	ErrEmbedding = errors.New("embedding failed")
	// ErrNotFound marks lookups of unknown materials.
	ErrNotFound = errors.New("material not found")
)

// Material is one uploaded study document and its processing state.
type Material struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Subject    string    `db:"subject" json:"subject"`
	Filename   string    `db:"filename" json:"filename"`
	StoredName string    `db:"stored_name" json:"stored_name"`
	SizeBytes  int64     `db:"size_bytes" json:"size_bytes"`
	SHA256     string    `db:"sha256" json:"sha256"`
	Status     string    `db:"status" json:"status"`
	Error      string    `db:"error" json:"error,omitempty"`
	PageCount  int       `db:"page_count" json:"page_count"`
	ChunkCount int       `db:"chunk_count" json:"chunk_count"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}
