// Package indexer provides document chunking and the ingestion pipeline.
package indexer

import (
	"fmt"

	"github.com/Khandelwalgov/AskPro/internal/models"
	"github.com/google/uuid"
)

// Chunking defaults, in characters.
const (
	DefaultChunkSize    = 700
	DefaultChunkOverlap = 100
)

// DefaultSeparators are the preferred cut points, strongest first:
// paragraph, line, sentence, word.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Chunker splits text into overlapping passages of at most chunkSize characters,
// cutting at the strongest separator available in each window.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	separators   [][]rune
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithSeparators replaces the separator priority list. Empty separators are ignored.
func WithSeparators(seps []string) ChunkerOption {
	return func(c *Chunker) {
		c.separators = c.separators[:0]
		for _, s := range seps {
			if s != "" {
				c.separators = append(c.separators, []rune(s))
			}
		}
	}
}

// NewChunker creates a chunker with the given size and overlap (in characters).
// A non-positive size uses DefaultChunkSize; an overlap that is negative or not
// smaller than the size is clamped to size/4.
func NewChunker(chunkSize, chunkOverlap int, opts ...ChunkerOption) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 4
	}
	c := &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
	WithSeparators(DefaultSeparators)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChunkSize returns the maximum chunk length in characters.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// ChunkOverlap returns the configured overlap in characters.
func (c *Chunker) ChunkOverlap() int { return c.chunkOverlap }

// Split cuts text into chunks in source order. Every chunk after the first
// begins min(overlap, len(previous)) characters before the previous chunk ends,
// so joining the first chunk with every later chunk minus its Overlap prefix
// reproduces text exactly. Empty text yields nil.
func (c *Chunker) Split(filename, text string) []models.Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []models.Chunk
	start, prevEnd := 0, 0
	for {
		windowEnd := min(start+c.chunkSize, n)
		cut := windowEnd
		if windowEnd < n {
			cut = c.findCut(runes, start, prevEnd, windowEnd)
		}
		pos := len(chunks)
		chunks = append(chunks, models.Chunk{
			ID:       fmt.Sprintf("%04d_%s", pos, uuid.New().String()[:8]),
			Filename: filename,
			Position: pos,
			Start:    start,
			End:      cut,
			Overlap:  max(prevEnd-start, 0),
			Text:     string(runes[start:cut]),
		})
		if cut >= n {
			break
		}
		start = cut - min(c.chunkOverlap, cut-start)
		prevEnd = cut
	}
	return chunks
}

// findCut returns the end offset for the chunk beginning at start. The cut
// always lies in (prevEnd, windowEnd] so each chunk adds new text. Separators
// in the second half of the window are preferred to avoid tiny chunks.
func (c *Chunker) findCut(runes []rune, start, prevEnd, windowEnd int) int {
	floors := []int{max(prevEnd, start+c.chunkSize/2), prevEnd}
	for _, floor := range floors {
		for _, sep := range c.separators {
			if cut := lastSeparatorEnd(runes, sep, start, floor, windowEnd); cut > 0 {
				return cut
			}
		}
	}
	return windowEnd
}

// lastSeparatorEnd finds the last sep fully inside runes[start:windowEnd] whose
// end lies after floor, and returns that end offset, or -1.
func lastSeparatorEnd(runes, sep []rune, start, floor, windowEnd int) int {
	lo := max(start, floor-len(sep)+1)
	for i := windowEnd - len(sep); i >= lo; i-- {
		if matchAt(runes, sep, i) {
			return i + len(sep)
		}
	}
	return -1
}

func matchAt(runes, sep []rune, i int) bool {
	for j, r := range sep {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}
