// Package domain defines the core data model shared across the ingestion
// and query pipeline: chunks, indexed records, retrieved matches, and the
// structured outputs produced by the reasoning stage.
package domain

// Chunk is a bounded-size contiguous segment of a source document's text.
// Chunks are immutable once produced by the chunker.
type Chunk struct {
	Text       string `json:"text"`
	SourceID   string `json:"source_id"`
	ChunkIndex int    `json:"chunk_index"`
	FileID     string `json:"file_id"`
	Filename   string `json:"filename"`
}

// Metadata travels with every indexed record and retrieved match.
type Metadata struct {
	SourceID   string `json:"source_id"`
	ChunkIndex int    `json:"chunk_index"`
	FileID     string `json:"file_id"`
	Filename   string `json:"filename"`
}

// IndexedRecord is a single (vector, text, metadata) tuple stored in a
// vector index. Records are created on ingest and removed only by an
// explicit file-id deletion.
type IndexedRecord struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"-"`
	Text   string    `json:"text"`
	Meta   Metadata  `json:"metadata"`
}

// RetrievedMatch is a single similarity-search hit, ordered by descending
// score within a result set.
type RetrievedMatch struct {
	Text  string   `json:"text"`
	Score float32  `json:"score"`
	Meta  Metadata `json:"metadata"`
}

// Unknown is the sentinel for an entity the model could not extract.
const Unknown = "N/A"

// QueryEntities holds the fixed entity fields extracted from a user query.
// Error carries the failure marker when extraction itself failed; the
// entity fields are still well-formed in that case.
type QueryEntities struct {
	Age        string `json:"age"`
	Procedure  string `json:"procedure"`
	Location   string `json:"location"`
	PolicyType string `json:"policy_type"`
	Duration   string `json:"duration"`
	Error      string `json:"error,omitempty"`
}

// UnknownEntities returns a QueryEntities with every field set to the
// Unknown sentinel.
func UnknownEntities() QueryEntities {
	return QueryEntities{
		Age:        Unknown,
		Procedure:  Unknown,
		Location:   Unknown,
		PolicyType: Unknown,
		Duration:   Unknown,
	}
}

// Decision is the verdict of the reasoning stage.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionError    Decision = "error"
)

// DecisionResult is the structured verdict synthesized from retrieved
// clauses. It is well-formed under every failure mode: parse failures
// yield DecisionError with the raw model text in Justification.
type DecisionResult struct {
	Decision          Decision `json:"decision"`
	Amount            string   `json:"amount"`
	Justification     string   `json:"justification"`
	ReferencedClauses []string `json:"referenced_clauses"`
}
