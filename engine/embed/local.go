package embed

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/clausemind/clausemind/engine/domain"
	"github.com/clausemind/clausemind/pkg/fn"
)

const (
	// DefaultLocalDimension matches the dimension we run remote MiniLM
	// style models at, so the two providers are swappable per index.
	DefaultLocalDimension = 384
	// DefaultLocalWorkers bounds concurrent in-process inference.
	DefaultLocalWorkers = 4
)

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// Local is an in-process embedder using hashed bag-of-words features with
// sign hashing and L2 normalization. CPU-bound work runs on a bounded
// worker pool so callers serving traffic are never blocked behind a batch.
type Local struct {
	dim       int
	workers   int
	stopwords map[string]struct{}
}

// NewLocal creates a Local provider with the given dimension and worker
// pool size. Non-positive arguments fall back to defaults.
func NewLocal(dim, workers int) *Local {
	if dim <= 0 {
		dim = DefaultLocalDimension
	}
	if workers <= 0 {
		workers = DefaultLocalWorkers
	}
	return &Local{dim: dim, workers: workers, stopwords: stopwords()}
}

// Dimension implements Provider.
func (l *Local) Dimension() int { return l.dim }

// Embed implements Provider. Vectors come back in input order; the batch
// is fanned out across the worker pool.
func (l *Local) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, domain.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vecs := fn.ParMap(texts, l.workers, l.encode)
	return vecs, nil
}

// encode builds the hashed term-frequency vector for one text.
func (l *Local) encode(text string) []float32 {
	vec := make([]float32, l.dim)
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	count := 0
	for _, tok := range tokens {
		if _, stop := l.stopwords[tok]; stop {
			continue
		}
		bucket, sign := hashToken(tok, l.dim)
		vec[bucket] += sign
		count++
	}
	if count == 0 {
		return vec
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

// hashToken maps a token to a bucket and a ±1 sign. The sign bit keeps
// colliding tokens from always reinforcing each other.
func hashToken(tok string, dim int) (int, float32) {
	h := fnv.New64a()
	h.Write([]byte(tok))
	sum := h.Sum64()
	bucket := int(sum % uint64(dim))
	if sum&(1<<63) != 0 {
		return bucket, -1
	}
	return bucket, 1
}

func stopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else",
		"for", "to", "of", "in", "on", "at", "by", "with", "as",
		"is", "are", "was", "were", "be", "been", "being", "it",
		"this", "that", "these", "those", "from", "my", "i", "me",
		"do", "does", "did", "will", "would", "can", "could", "should",
		"what", "when", "where", "which", "who", "how", "not", "no",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
