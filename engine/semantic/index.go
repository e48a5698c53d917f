// Package semantic provides nearest-neighbor search over embedding
// vectors behind a backend-agnostic Index contract. Two backends exist:
// a managed Qdrant collection reached over gRPC, and an in-process index
// persisted to a local snapshot. Both use the cosine metric so scores
// stay comparable across a backend swap.
package semantic

import (
	"context"

	"github.com/clausemind/clausemind/engine/domain"
)

// Index stores indexed records and answers similarity queries.
type Index interface {
	// Upsert stores records, updating in place on ID collision. No-op on
	// empty input. Safe to call concurrently with Search.
	Upsert(ctx context.Context, records []domain.IndexedRecord) error

	// Search returns at most topK matches sorted by descending
	// similarity. A non-nil filter restricts matches by exact metadata
	// equality.
	Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]domain.RetrievedMatch, error)

	// DeleteByFileID removes every record whose metadata file id matches
	// and reports whether anything was removed.
	DeleteByFileID(ctx context.Context, fileID string) (bool, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Stats returns backend-defined diagnostics.
	Stats(ctx context.Context) (map[string]any, error)
}

// Payload keys shared by both backends.
const (
	FieldText       = "text"
	FieldSourceID   = "source_id"
	FieldChunkIndex = "chunk_index"
	FieldFileID     = "file_id"
	FieldFilename   = "filename"
)

// SearchWithThreshold filters Search results to matches at or above the
// given similarity score.
func SearchWithThreshold(ctx context.Context, idx Index, vector []float32, topK int, threshold float32) ([]domain.RetrievedMatch, error) {
	matches, err := idx.Search(ctx, vector, topK, nil)
	if err != nil {
		return nil, err
	}
	kept := matches[:0]
	for _, m := range matches {
		if m.Score >= threshold {
			kept = append(kept, m)
		}
	}
	return kept, nil
}
