// Package tasks tracks background ingestion jobs: a queue carrying work
// to a worker, and a status store the API reads task progress from.
package tasks

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a background ingestion task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Task is the observable state of one background ingestion.
type Task struct {
	ID            string    `json:"task_id"`
	FileID        string    `json:"file_id"`
	Filename      string    `json:"filename"`
	Status        Status    `json:"status"`
	ChunksIndexed int       `json:"chunks_indexed"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Job is the unit of work placed on the queue.
type Job struct {
	TaskID    string `json:"task_id"`
	FileID    string `json:"file_id"`
	Filename  string `json:"filename"`
	Locator   string `json:"locator"`
	SizeBytes int64  `json:"size_bytes"`
}

// StatusStore keeps task state in memory, keyed by task ID.
type StatusStore struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// NewStatusStore creates an empty StatusStore.
func NewStatusStore() *StatusStore {
	return &StatusStore{tasks: make(map[string]Task)}
}

// Create registers a new pending task.
func (s *StatusStore) Create(id, fileID, filename string) Task {
	now := time.Now().UTC()
	t := Task{
		ID:        id,
		FileID:    fileID,
		Filename:  filename,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.tasks[id] = t
	s.mu.Unlock()
	return t
}

// Get returns the task with the given ID.
func (s *StatusStore) Get(id string) (Task, bool) {
	s.mu.RLock()
	t, ok := s.tasks[id]
	s.mu.RUnlock()
	return t, ok
}

// MarkProcessing transitions a task to processing.
func (s *StatusStore) MarkProcessing(id string) {
	s.update(id, func(t *Task) {
		t.Status = StatusProcessing
	})
}

// MarkCompleted transitions a task to completed with its chunk count.
func (s *StatusStore) MarkCompleted(id string, chunks int) {
	s.update(id, func(t *Task) {
		t.Status = StatusCompleted
		t.ChunksIndexed = chunks
	})
}

// MarkFailed transitions a task to failed with the error message.
func (s *StatusStore) MarkFailed(id, errMsg string) {
	s.update(id, func(t *Task) {
		t.Status = StatusFailed
		t.Error = errMsg
	})
}

func (s *StatusStore) update(id string, f func(*Task)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return
	}
	f(&t)
	t.UpdatedAt = time.Now().UTC()
	s.tasks[id] = t
}
