package chunk

import (
	"strings"
	"testing"
)

func TestSplit_Empty(t *testing.T) {
	s := NewSplitter(100, 20)
	if got := s.Split("", "src", "f1", "a.txt"); got != nil {
		t.Fatalf("expected nil for empty text, got %d chunks", len(got))
	}
	if got := s.Split("   \n\n \t ", "src", "f1", "a.txt"); got != nil {
		t.Fatalf("expected nil for whitespace text, got %d chunks", len(got))
	}
}

func TestSplit_SingleChunk(t *testing.T) {
	s := NewSplitter(100, 20)
	chunks := s.Split("short policy clause", "policy.pdf", "f1", "policy.pdf")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Text != "short policy clause" {
		t.Errorf("unexpected text: %q", c.Text)
	}
	if c.SourceID != "policy.pdf" || c.FileID != "f1" || c.Filename != "policy.pdf" || c.ChunkIndex != 0 {
		t.Errorf("unexpected metadata: %+v", c)
	}
}

func TestSplit_RoundTrip(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("Clause text about coverage limits and waiting periods for claims. ")
		if i%5 == 4 {
			b.WriteString("\n\n")
		}
	}
	text := b.String()

	maxSize, overlap := 120, 30
	s := NewSplitter(maxSize, overlap)
	chunks := s.Split(text, "src", "f1", "a.txt")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	var rebuilt strings.Builder
	prevLen := 0
	for i, c := range chunks {
		if len(c.Text) > maxSize {
			t.Errorf("chunk %d exceeds max size: %d", i, len(c.Text))
		}
		if i == 0 {
			rebuilt.WriteString(c.Text)
			prevLen = len(c.Text)
			continue
		}
		prefix := overlap
		if prevLen < prefix {
			prefix = prevLen
		}
		rebuilt.WriteString(c.Text[prefix:])
		prevLen = len(c.Text)
	}
	if rebuilt.String() != text {
		t.Fatalf("overlap-stripped concatenation does not reconstruct the input\nwant %d bytes, got %d", len(text), rebuilt.Len())
	}
}

func TestSplit_OverlapPrefix(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("word word word word word word word word word word\n")
	}
	overlap := 25
	s := NewSplitter(100, overlap)
	chunks := s.Split(b.String(), "src", "f1", "a.txt")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Text
		want := prev
		if len(prev) > overlap {
			want = prev[len(prev)-overlap:]
		}
		if !strings.HasPrefix(chunks[i].Text, want) {
			t.Fatalf("chunk %d does not start with the previous chunk's tail", i)
		}
	}
}

func TestSplit_OversizeToken(t *testing.T) {
	token := strings.Repeat("x", 500)
	s := NewSplitter(100, 20)
	chunks := s.Split(token, "src", "f1", "a.txt")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for a separator-free token, got %d", len(chunks))
	}
	if chunks[0].Text != token {
		t.Errorf("oversize token was not emitted whole")
	}
}

func TestSplit_ChunkIndicesOrdered(t *testing.T) {
	text := strings.Repeat("some clause text here ", 50)
	s := NewSplitter(80, 10)
	chunks := s.Split(text, "src", "f9", "b.txt")
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Fatalf("chunk %d has index %d", i, c.ChunkIndex)
		}
	}
}

func TestNewSplitter_Clamps(t *testing.T) {
	s := NewSplitter(0, -5)
	if s.maxSize != DefaultMaxSize || s.overlap != 0 {
		t.Errorf("unexpected defaults: maxSize=%d overlap=%d", s.maxSize, s.overlap)
	}
	s = NewSplitter(100, 100)
	if s.overlap != 50 {
		t.Errorf("overlap >= maxSize should clamp to half, got %d", s.overlap)
	}
}
