// Package chunk splits raw document text into overlapping bounded-size
// segments. Splitting descends through progressively finer separators
// (paragraph break, line break, space) until every segment fits, then
// prepends an overlap window from the previous chunk so context survives
// a split boundary.
package chunk

import (
	"strings"

	"github.com/clausemind/clausemind/engine/domain"
)

const (
	// DefaultMaxSize is the target chunk size in characters.
	DefaultMaxSize = 1000
	// DefaultOverlap is the number of characters shared between adjacent chunks.
	DefaultOverlap = 200
)

// separators, coarsest first. A piece with none of these is emitted whole
// even when oversize; there is no finer boundary to cut at.
var separators = []string{"\n\n", "\n", " "}

// Splitter produces chunks from raw text.
type Splitter struct {
	maxSize int
	overlap int
}

// NewSplitter creates a Splitter. Non-positive maxSize falls back to
// DefaultMaxSize; overlap is clamped below maxSize so chunks always make
// forward progress.
func NewSplitter(maxSize, overlap int) *Splitter {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxSize {
		overlap = maxSize / 2
	}
	return &Splitter{maxSize: maxSize, overlap: overlap}
}

// Split cuts rawText into ordered chunks carrying the given source
// metadata. Empty or whitespace-only input yields no chunks. Every chunk
// after the first starts with exactly the last overlap characters of its
// predecessor, so stripping that prefix and concatenating reconstructs
// the original text.
func (s *Splitter) Split(rawText, sourceID, fileID, filename string) []domain.Chunk {
	if strings.TrimSpace(rawText) == "" {
		return nil
	}

	segments := split(rawText, separators, s.maxSize-s.overlap)

	chunks := make([]domain.Chunk, 0, len(segments))
	prev := ""
	for i, seg := range segments {
		text := seg
		if i > 0 {
			text = tail(prev, s.overlap) + seg
		}
		chunks = append(chunks, domain.Chunk{
			Text:       text,
			SourceID:   sourceID,
			ChunkIndex: i,
			FileID:     fileID,
			Filename:   filename,
		})
		prev = text
	}
	return chunks
}

// split recursively cuts text into segments of at most limit characters.
// Segments are exact substrings whose concatenation equals text: each
// separator stays attached to the piece it terminates.
func split(text string, seps []string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	if len(seps) == 0 {
		// No boundary left; emit whole rather than cutting mid-token.
		return []string{text}
	}

	pieces := splitAfter(text, seps[0])
	if len(pieces) == 1 {
		return split(text, seps[1:], limit)
	}

	// Merge adjacent pieces greedily up to limit, recursing into any
	// piece that is itself oversize.
	var segments []string
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			segments = append(segments, buf.String())
			buf.Reset()
		}
	}
	for _, p := range pieces {
		if len(p) > limit {
			flush()
			segments = append(segments, split(p, seps[1:], limit)...)
			continue
		}
		if buf.Len()+len(p) > limit {
			flush()
		}
		buf.WriteString(p)
	}
	flush()
	return segments
}

// splitAfter splits s after every occurrence of sep, keeping sep at the
// end of each piece.
func splitAfter(s, sep string) []string {
	parts := strings.SplitAfter(s, sep)
	// SplitAfter yields a trailing empty string when s ends with sep.
	if n := len(parts); n > 1 && parts[n-1] == "" {
		parts = parts[:n-1]
	}
	return parts
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
