// Package storage abstracts the object storage collaborator holding
// uploaded document blobs. The pipeline only needs a byte stream and a
// locator; the provider behind it is opaque.
package storage

import "context"

// Object describes a stored blob.
type Object struct {
	// Locator addresses the blob for later retrieval.
	Locator string `json:"locator"`
	// SizeBytes is the stored size.
	SizeBytes int64 `json:"size_bytes"`
}

// Store persists and retrieves opaque document blobs.
type Store interface {
	// Store persists data under a provider-chosen locator derived from
	// filename.
	Store(ctx context.Context, data []byte, filename string) (Object, error)
	// Fetch returns the bytes addressed by locator.
	Fetch(ctx context.Context, locator string) ([]byte, error)
}
