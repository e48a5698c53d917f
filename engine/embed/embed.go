// Package embed maps text to fixed-dimension vectors. Two interchangeable
// providers exist: an in-process hashed-feature embedder running on a
// bounded worker pool, and a remote HTTP endpoint. Both declare their
// dimension once at construction and keep it for their lifetime.
package embed

import (
	"context"
	"fmt"

	"github.com/clausemind/clausemind/engine/domain"
)

// Provider generates one vector per input text, order preserving.
type Provider interface {
	// Embed returns a vector per text. Empty input fails with
	// domain.ErrInvalidInput; embedding is pure, so failed calls are
	// safe to retry.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the fixed length of every vector this provider emits.
	Dimension() int
}

// One embeds a single text, failing if the provider returns no vectors.
func One(ctx context.Context, p Provider, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed: provider returned no vectors: %w", domain.ErrInvalidInput)
	}
	return vecs[0], nil
}
