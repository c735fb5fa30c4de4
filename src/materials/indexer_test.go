package materials

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Protocol-Lattice/go-tutor/src/embed"
	"github.com/Protocol-Lattice/go-tutor/src/index"
)

func newTestIndexer() *Indexer {
	ix := NewIndexer(NewInMemoryMaterialStore(), index.NewInMemoryIndex(), embed.DummyEmbedder{})
	ix.ChunkSize = 50
	ix.ChunkOverlap = 5
	return ix
}

func studyText() string {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("photosynthesis is the process plants use to convert light into chemical energy ")
	}
	b.WriteString("mitochondria are the powerhouse of the cell and produce adenosine triphosphate ")
	return b.String()
}

func TestIngestAndQuery(t *testing.T) {
	ix := newTestIndexer()
	ctx := context.Background()

	m, err := ix.Ingest(ctx, "u1", "biology", "notes.txt", []byte(studyText()))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if m.Status != StatusReady {
		t.Fatalf("expected ready material, got %s (%s)", m.Status, m.Error)
	}
	if m.ChunkCount == 0 {
		t.Fatal("ready material must have chunks")
	}
	if m.SHA256 == "" || m.StoredName == "" {
		t.Fatalf("material missing integrity fields: %+v", m)
	}
	if m.PageCount != 1 {
		t.Fatalf("text upload counts as one page, got %d", m.PageCount)
	}

	snippets, err := ix.Query(ctx, m.ID, "how do plants convert light", 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(snippets) == 0 {
		t.Fatal("expected snippets for indexed material")
	}
	if len(snippets) > 3 {
		t.Fatalf("expected at most 3 snippets, got %d", len(snippets))
	}
	for i := 1; i < len(snippets); i++ {
		if snippets[i].Score > snippets[i-1].Score {
			t.Fatal("snippets not sorted by score")
		}
	}
	if snippets[0].Meta["material_id"] != m.ID {
		t.Fatalf("snippet meta missing material id: %v", snippets[0].Meta)
	}
}

func TestIngestRejectsDisallowedExtension(t *testing.T) {
	ix := newTestIndexer()
	_, err := ix.Ingest(context.Background(), "u1", "biology", "virus.exe", []byte("MZ..."))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIngestRejectsOversize(t *testing.T) {
	ix := newTestIndexer()
	ix.MaxBytes = 10
	_, err := ix.Ingest(context.Background(), "u1", "biology", "notes.txt", []byte("this is definitely longer than ten bytes"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIngestRejectsMismatchedContent(t *testing.T) {
	ix := newTestIndexer()
	// .pdf extension without the %PDF header.
	_, err := ix.Ingest(context.Background(), "u1", "biology", "fake.pdf", []byte("plain text pretending"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIngestShortTextFails(t *testing.T) {
	ix := newTestIndexer()
	ctx := context.Background()

	m, err := ix.Ingest(ctx, "u1", "biology", "tiny.txt", []byte("hi"))
	if err == nil {
		t.Fatal("expected error for too-short text")
	}
	if m == nil || m.Status != StatusFailed {
		t.Fatalf("expected failed material record, got %+v", m)
	}
	if m.Error == "" {
		t.Fatal("failed material must record the cause")
	}

	// The failed record stays queryable but yields nothing.
	snippets, err := ix.Query(ctx, m.ID, "anything", 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(snippets) != 0 {
		t.Fatalf("failed material must have no snippets, got %d", len(snippets))
	}
}

func TestEmbeddingFailureMarksFailed(t *testing.T) {
	ix := newTestIndexer()
	ix.Embedder = failingEmbedder{}

	m, err := ix.Ingest(context.Background(), "u1", "biology", "notes.txt", []byte(studyText()))
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected embedding error, got %v", err)
	}
	if m.Status != StatusFailed {
		t.Fatalf("expected failed status, got %s", m.Status)
	}
}

func TestQueryUnknownMaterial(t *testing.T) {
	ix := newTestIndexer()
	snippets, err := ix.Query(context.Background(), "no-such-material", "question", 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(snippets) != 0 {
		t.Fatalf("expected empty result, got %d snippets", len(snippets))
	}
}

func TestDeleteRemovesEverything(t *testing.T) {
	ix := newTestIndexer()
	ctx := context.Background()

	m, err := ix.Ingest(ctx, "u1", "biology", "notes.txt", []byte(studyText()))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if err := ix.Delete(ctx, m.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	snippets, _ := ix.Query(ctx, m.ID, "plants", 3)
	if len(snippets) != 0 {
		t.Fatal("deleted material must yield no snippets")
	}
	if _, err := ix.Get(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	// Deleting again is a no-op.
	if err := ix.Delete(ctx, m.ID); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
}

func TestListFiltersBySubject(t *testing.T) {
	ix := newTestIndexer()
	ctx := context.Background()

	ix.Ingest(ctx, "u1", "biology", "bio.txt", []byte(studyText()))
	ix.Ingest(ctx, "u1", "history", "rome.txt", []byte(studyText()))
	ix.Ingest(ctx, "u2", "biology", "other.txt", []byte(studyText()))

	bio, err := ix.List(ctx, "u1", "biology")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(bio) != 1 || bio[0].Filename != "bio.txt" {
		t.Fatalf("unexpected subject filter result: %+v", bio)
	}

	all, _ := ix.List(ctx, "u1", "")
	if len(all) != 2 {
		t.Fatalf("expected 2 materials for u1, got %d", len(all))
	}
}

func TestContextJoinsSnippets(t *testing.T) {
	ix := newTestIndexer()
	ctx := context.Background()

	m, err := ix.Ingest(ctx, "u1", "biology", "notes.txt", []byte(studyText()))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	block, err := ix.Context(ctx, m.ID, "powerhouse of the cell", 2)
	if err != nil {
		t.Fatalf("Context failed: %v", err)
	}
	if block == "" {
		t.Fatal("expected non-empty context block")
	}
}

// statusRecorder wraps a MaterialStore and keeps every status written
// for the first material it sees.
type statusRecorder struct {
	MaterialStore
	statuses []string
}

func (r *statusRecorder) Save(ctx context.Context, m *Material) error {
	r.statuses = append(r.statuses, m.Status)
	return r.MaterialStore.Save(ctx, m)
}

func TestIngestStatusProgression(t *testing.T) {
	rec := &statusRecorder{MaterialStore: NewInMemoryMaterialStore()}
	ix := newTestIndexer()
	ix.Store = rec

	_, err := ix.Ingest(context.Background(), "u1", "biology", "notes.txt", []byte(studyText()))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	want := []string{StatusPending, StatusProcessing, StatusReady}
	if len(rec.statuses) != len(want) {
		t.Fatalf("expected %d saves, got %v", len(want), rec.statuses)
	}
	for i, s := range want {
		if rec.statuses[i] != s {
			t.Fatalf("save %d: expected status %s, got %s", i, s, rec.statuses[i])
		}
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider unavailable")
}
