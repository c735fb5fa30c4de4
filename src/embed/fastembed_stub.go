//go:build !fastembed

package embed

import (
	"context"
	"fmt"
)

type FastEmbedOptions struct{}

type FastEmbedder struct{}

func defaultFastEmbedOptions() *FastEmbedOptions { return nil }

func NewFastEmbedder(ctx context.Context, opt *FastEmbedOptions) (Embedder, error) {
	return nil, fmt.Errorf("fastembed support not included; rebuild with -tags fastembed")
}

func (FastEmbedder) Close() error { return nil }

func (FastEmbedder) Dim() int { return 0 }

func (FastEmbedder) Embed(ctx context.Context, q string) ([]float32, error) {
	return nil, fmt.Errorf("fastembed support not included")
}
