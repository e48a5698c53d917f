package semantic

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/clausemind/clausemind/engine/domain"
)

// Snapshot file names: a binary vector index plus a parallel record list.
// Both are read back together; mismatched lengths mean corruption.
const (
	snapshotIndexFile   = "index.gob"
	snapshotRecordsFile = "records.json"
)

// Memory is the in-process Index backend: brute-force cosine similarity
// over an in-memory record list, with exhaustive post-filtering in place
// of native metadata filters. It persists to a local snapshot directory
// on explicit Save/Load.
type Memory struct {
	mu      sync.RWMutex
	dim     int
	records []domain.IndexedRecord
	byID    map[string]int
}

// NewMemory creates an empty in-process index for vectors of the given
// dimension.
func NewMemory(dim int) *Memory {
	return &Memory{dim: dim, byID: make(map[string]int)}
}

// Upsert implements Index. Records with a known ID are updated in place,
// so a retried upsert leaves the count unchanged.
func (m *Memory) Upsert(_ context.Context, records []domain.IndexedRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if len(r.Vector) != m.dim {
			return &domain.DimensionMismatchError{Index: "memory", Want: m.dim, Got: len(r.Vector)}
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if i, ok := m.byID[r.ID]; ok {
			m.records[i] = r
			continue
		}
		m.byID[r.ID] = len(m.records)
		m.records = append(m.records, r)
	}
	return nil
}

// Search implements Index. Ties keep insertion order.
func (m *Memory) Search(_ context.Context, vector []float32, topK int, filter map[string]string) ([]domain.RetrievedMatch, error) {
	if len(vector) != m.dim {
		return nil, &domain.DimensionMismatchError{Index: "memory", Want: m.dim, Got: len(vector)}
	}
	if topK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]domain.RetrievedMatch, 0, len(m.records))
	for _, r := range m.records {
		if !matchesFilter(r.Meta, filter) {
			continue
		}
		matches = append(matches, domain.RetrievedMatch{
			Text:  r.Text,
			Score: cosine(vector, r.Vector),
			Meta:  r.Meta,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteByFileID implements Index as filter-then-bulk-delete over the
// record list.
func (m *Memory) DeleteByFileID(_ context.Context, fileID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	removed := false
	for _, r := range m.records {
		if r.Meta.FileID == fileID {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	if !removed {
		return false, nil
	}
	m.records = kept
	m.byID = make(map[string]int, len(kept))
	for i, r := range kept {
		m.byID[r.ID] = i
	}
	return true, nil
}

// Count implements Index.
func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Stats implements Index.
func (m *Memory) Stats(_ context.Context) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]any{
		"backend":      "memory",
		"points_count": len(m.records),
		"dimension":    m.dim,
	}, nil
}

// snapshotIndex is the binary half of a snapshot: dimension plus vectors
// in record order.
type snapshotIndex struct {
	Dimension int
	Vectors   [][]float32
}

// snapshotRecord is the serialized half of a record, vector omitted.
type snapshotRecord struct {
	ID   string          `json:"id"`
	Text string          `json:"text"`
	Meta domain.Metadata `json:"metadata"`
}

// Save writes the index to dir as two files: the binary vector index and
// a parallel ordered record list.
func (m *Memory) Save(dir string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("semantic: snapshot dir: %w", err)
	}

	idx := snapshotIndex{Dimension: m.dim, Vectors: make([][]float32, len(m.records))}
	recs := make([]snapshotRecord, len(m.records))
	for i, r := range m.records {
		idx.Vectors[i] = r.Vector
		recs[i] = snapshotRecord{ID: r.ID, Text: r.Text, Meta: r.Meta}
	}

	f, err := os.Create(filepath.Join(dir, snapshotIndexFile))
	if err != nil {
		return fmt.Errorf("semantic: write snapshot index: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(idx); err != nil {
		return fmt.Errorf("semantic: encode snapshot index: %w", err)
	}

	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("semantic: encode snapshot records: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, snapshotRecordsFile), data, 0o644); err != nil {
		return fmt.Errorf("semantic: write snapshot records: %w", err)
	}
	return nil
}

// Load replaces the index contents with a previously saved snapshot. A
// snapshot whose vector and record counts disagree, or whose dimension
// differs from the index's, is rejected. A missing snapshot is not an
// error; the index stays empty.
func (m *Memory) Load(dir string) error {
	f, err := os.Open(filepath.Join(dir, snapshotIndexFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("semantic: open snapshot index: %w", err)
	}
	defer f.Close()

	var idx snapshotIndex
	if err := gob.NewDecoder(f).Decode(&idx); err != nil {
		return fmt.Errorf("semantic: decode snapshot index: %w", domain.ErrCorruptSnapshot)
	}
	if idx.Dimension != m.dim {
		return &domain.DimensionMismatchError{Index: "memory snapshot", Want: m.dim, Got: idx.Dimension}
	}

	data, err := os.ReadFile(filepath.Join(dir, snapshotRecordsFile))
	if err != nil {
		return fmt.Errorf("semantic: read snapshot records: %w", domain.ErrCorruptSnapshot)
	}
	var recs []snapshotRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return fmt.Errorf("semantic: decode snapshot records: %w", domain.ErrCorruptSnapshot)
	}
	if len(recs) != len(idx.Vectors) {
		return fmt.Errorf("semantic: snapshot has %d vectors but %d records: %w",
			len(idx.Vectors), len(recs), domain.ErrCorruptSnapshot)
	}

	records := make([]domain.IndexedRecord, len(recs))
	byID := make(map[string]int, len(recs))
	for i, r := range recs {
		records[i] = domain.IndexedRecord{ID: r.ID, Vector: idx.Vectors[i], Text: r.Text, Meta: r.Meta}
		byID[r.ID] = i
	}

	m.mu.Lock()
	m.records = records
	m.byID = byID
	m.mu.Unlock()
	return nil
}

func matchesFilter(meta domain.Metadata, filter map[string]string) bool {
	for k, v := range filter {
		switch k {
		case FieldSourceID:
			if meta.SourceID != v {
				return false
			}
		case FieldFileID:
			if meta.FileID != v {
				return false
			}
		case FieldFilename:
			if meta.Filename != v {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
