// Package pipeline wires chunking, embedding, vector search, and
// reasoning into the two end-to-end flows: document ingestion and query
// answering.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clausemind/clausemind/engine/chunk"
	"github.com/clausemind/clausemind/engine/domain"
	"github.com/clausemind/clausemind/engine/embed"
	"github.com/clausemind/clausemind/engine/reason"
	"github.com/clausemind/clausemind/engine/semantic"
	"github.com/clausemind/clausemind/pkg/fn"
	"github.com/clausemind/clausemind/pkg/metrics"
	"github.com/clausemind/clausemind/pkg/pdftext"
)

// DefaultTopK is how many clauses a query retrieves when the caller does
// not say otherwise.
const DefaultTopK = 5

// Deps are the pipeline collaborators. All fields except Logger and
// Metrics are required.
type Deps struct {
	Splitter *chunk.Splitter
	Embedder embed.Provider
	Index    semantic.Index
	Reasoner *reason.Reasoner
	Logger   *slog.Logger
	Metrics  *metrics.Registry
	TopK     int
}

// Pipeline runs ingestion and query flows over a fixed set of
// collaborators.
type Pipeline struct {
	splitter *chunk.Splitter
	embedder embed.Provider
	index    semantic.Index
	reasoner *reason.Reasoner
	logger   *slog.Logger
	topK     int

	ingestDocs    *metrics.Counter
	ingestChunks  *metrics.Counter
	ingestSeconds *metrics.Histogram
	queries       *metrics.Counter
	queryFailures *metrics.Counter
	querySeconds  *metrics.Histogram
}

// New creates a Pipeline. A nil Logger falls back to slog.Default(); a
// nil Metrics registry gets a private one.
func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.TopK <= 0 {
		deps.TopK = DefaultTopK
	}
	reg := deps.Metrics
	return &Pipeline{
		splitter: deps.Splitter,
		embedder: deps.Embedder,
		index:    deps.Index,
		reasoner: deps.Reasoner,
		logger:   deps.Logger,
		topK:     deps.TopK,

		ingestDocs:    reg.Counter("clausemind_ingest_documents_total", "Documents ingested"),
		ingestChunks:  reg.Counter("clausemind_ingest_chunks_total", "Chunks indexed"),
		ingestSeconds: reg.Histogram("clausemind_ingest_duration_seconds", "Ingestion latency", nil),
		queries:       reg.Counter("clausemind_queries_total", "Queries answered"),
		queryFailures: reg.Counter("clausemind_query_failures_total", "Queries that returned an error"),
		querySeconds:  reg.Histogram("clausemind_query_duration_seconds", "Query latency", nil),
	}
}

// QueryResult is the full answer to one query.
type QueryResult struct {
	Query    string                  `json:"query"`
	Entities domain.QueryEntities    `json:"parsed_entities"`
	Matches  []domain.RetrievedMatch `json:"retrieved_clauses"`
	Decision domain.DecisionResult   `json:"decision"`
}

// Ingest extracts text from a document, chunks it, embeds every chunk,
// and upserts the result into the index. It returns the number of chunks
// indexed. The upsert is all-or-nothing: a failure anywhere leaves the
// index without partial writes from this call.
func (p *Pipeline) Ingest(ctx context.Context, data []byte, fileID, filename string) (int, error) {
	start := time.Now()

	text, err := pdftext.Extract(data, filename)
	if err != nil {
		return 0, fmt.Errorf("ingest %s: %w", filename, err)
	}
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("ingest %s: %w: no extractable text", filename, domain.ErrInvalidInput)
	}

	chunks := p.splitter.Split(text, filename, fileID, filename)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	// Embedding is the one remote hop here; transient upstream failures
	// get retried before the whole ingest is declared failed.
	vecRes := fn.Retry(ctx, fn.DefaultRetry, func(ctx context.Context) fn.Result[[][]float32] {
		return fn.FromPair(p.embedder.Embed(ctx, texts))
	})
	vecs, err := vecRes.Unwrap()
	if err != nil {
		return 0, fmt.Errorf("ingest %s: embed: %w", filename, err)
	}

	records := make([]domain.IndexedRecord, len(chunks))
	for i, c := range chunks {
		records[i] = domain.IndexedRecord{
			// Deterministic per (file, chunk) so retried ingests update
			// rather than duplicate.
			ID:     uuid.NewSHA1(uuid.NameSpaceOID, []byte(c.FileID+"-"+strconv.Itoa(c.ChunkIndex))).String(),
			Vector: vecs[i],
			Text:   c.Text,
			Meta: domain.Metadata{
				SourceID:   c.SourceID,
				ChunkIndex: c.ChunkIndex,
				FileID:     c.FileID,
				Filename:   c.Filename,
			},
		}
	}

	if err := p.index.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("ingest %s: upsert: %w", filename, err)
	}

	p.ingestDocs.Inc()
	p.ingestChunks.Add(int64(len(records)))
	p.ingestSeconds.Since(start)
	p.logger.Info("document ingested",
		"file_id", fileID, "filename", filename, "chunks", len(records))
	return len(records), nil
}

// Query answers one user query: entity extraction and vector retrieval
// run concurrently, then the reasoner synthesizes a decision over the
// retrieved clause texts. An empty index is rejected up front with
// domain.ErrEmptyIndex.
func (p *Pipeline) Query(ctx context.Context, query string, topK int) (QueryResult, error) {
	start := time.Now()

	if strings.TrimSpace(query) == "" {
		return QueryResult{}, fmt.Errorf("query: %w: empty query", domain.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = p.topK
	}

	count, err := p.index.Count(ctx)
	if err != nil {
		p.queryFailures.Inc()
		return QueryResult{}, fmt.Errorf("query: count: %w", err)
	}
	if count == 0 {
		p.queryFailures.Inc()
		return QueryResult{}, fmt.Errorf("query: %w", domain.ErrEmptyIndex)
	}

	// Entity extraction does not feed retrieval, so it runs alongside
	// the embed+search leg.
	entitiesCh := make(chan domain.QueryEntities, 1)
	go func() {
		entitiesCh <- p.reasoner.ExtractEntities(ctx, query)
	}()

	retrieve := fn.Then(
		fn.Traced("query.embed", func(ctx context.Context, q string) fn.Result[[]float32] {
			return fn.FromPair(embed.One(ctx, p.embedder, q))
		}),
		fn.Traced("query.search", func(ctx context.Context, vec []float32) fn.Result[[]domain.RetrievedMatch] {
			return fn.FromPair(p.index.Search(ctx, vec, topK, nil))
		}),
	)
	matches, err := retrieve(ctx, query).Unwrap()
	if err != nil {
		<-entitiesCh
		p.queryFailures.Inc()
		return QueryResult{}, fmt.Errorf("query: retrieve: %w", err)
	}

	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}
	decision := p.reasoner.Reason(ctx, query, texts)
	entities := <-entitiesCh

	p.queries.Inc()
	p.querySeconds.Since(start)
	p.logger.Info("query answered",
		"matches", len(matches), "decision", decision.Decision)
	return QueryResult{
		Query:    query,
		Entities: entities,
		Matches:  matches,
		Decision: decision,
	}, nil
}

// DeleteDocument removes every indexed chunk belonging to fileID. It
// reports whether anything was removed.
func (p *Pipeline) DeleteDocument(ctx context.Context, fileID string) (bool, error) {
	if strings.TrimSpace(fileID) == "" {
		return false, fmt.Errorf("delete: %w: empty file id", domain.ErrInvalidInput)
	}
	removed, err := p.index.DeleteByFileID(ctx, fileID)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", fileID, err)
	}
	if removed {
		p.logger.Info("document deleted", "file_id", fileID)
	}
	return removed, nil
}

// Stats reports backend statistics for the vector index.
func (p *Pipeline) Stats(ctx context.Context) (map[string]any, error) {
	return p.index.Stats(ctx)
}
