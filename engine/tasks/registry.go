package tasks

import (
	"sort"
	"sync"
	"time"
)

// DocumentInfo describes one ingested document for the listing endpoint.
type DocumentInfo struct {
	FileID        string    `json:"file_id"`
	Filename      string    `json:"filename"`
	SizeBytes     int64     `json:"size_bytes"`
	ChunksIndexed int       `json:"chunks_indexed"`
	UploadedAt    time.Time `json:"uploaded_at"`
}

// Registry tracks ingested documents in memory, keyed by file ID. It is
// the lookup source for file ids passed to the delete endpoint.
type Registry struct {
	mu   sync.RWMutex
	docs map[string]DocumentInfo
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{docs: make(map[string]DocumentInfo)}
}

// Put records a successfully ingested document, replacing any previous
// entry for the same file ID.
func (r *Registry) Put(fileID, filename string, sizeBytes int64, chunks int) {
	r.mu.Lock()
	r.docs[fileID] = DocumentInfo{
		FileID:        fileID,
		Filename:      filename,
		SizeBytes:     sizeBytes,
		ChunksIndexed: chunks,
		UploadedAt:    time.Now().UTC(),
	}
	r.mu.Unlock()
}

// Remove drops the entry for a deleted document.
func (r *Registry) Remove(fileID string) {
	r.mu.Lock()
	delete(r.docs, fileID)
	r.mu.Unlock()
}

// List returns all known documents, newest first. Ties on upload time
// break on file ID so the order is stable.
func (r *Registry) List() []DocumentInfo {
	r.mu.RLock()
	out := make([]DocumentInfo, 0, len(r.docs))
	for _, d := range r.docs {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].FileID < out[j].FileID
	})
	return out
}
