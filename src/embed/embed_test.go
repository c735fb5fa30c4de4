package embed

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDummyEmbeddingDeterministic(t *testing.T) {
	a := DummyEmbedding("photosynthesis")
	b := DummyEmbedding("photosynthesis")
	if len(a) != 768 {
		t.Fatalf("expected 768 dims, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("dummy embedding not deterministic at dim %d", i)
		}
	}
}

func TestDummyEmbeddingDistinguishesText(t *testing.T) {
	a := DummyEmbedding("mitosis")
	b := DummyEmbedding("the krebs cycle")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different texts produced identical vectors")
	}
}

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return DummyEmbedding(text), nil
}

func TestCachedEmbedderHitsCache(t *testing.T) {
	inner := &countingEmbedder{}
	ce := NewCachedEmbedder(inner, 16, time.Minute)

	if _, err := ce.Embed(context.Background(), "osmosis"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ce.Embed(context.Background(), "osmosis"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", inner.calls)
	}
}

func TestCachedEmbedderDoesNotCacheErrors(t *testing.T) {
	boom := errors.New("model offline")
	inner := &countingEmbedder{err: boom}
	ce := NewCachedEmbedder(inner, 16, time.Minute)

	if _, err := ce.Embed(context.Background(), "osmosis"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	inner.err = nil
	if _, err := ce.Embed(context.Background(), "osmosis"); err != nil {
		t.Fatalf("expected recovery after upstream healed: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", inner.calls)
	}
}

func TestAutoEmbedderExplicitDummy(t *testing.T) {
	e := AutoEmbedder("dummy", "", "")
	if _, ok := e.(DummyEmbedder); !ok {
		t.Fatalf("expected DummyEmbedder, got %T", e)
	}
}

func TestAutoEmbedderUnknownFallsBack(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("OPENAI_API_KEY", "")
	e := AutoEmbedder("no-such-provider", "", "")
	if _, ok := e.(DummyEmbedder); !ok {
		t.Fatalf("expected fallback to DummyEmbedder, got %T", e)
	}
}
