package ingestion

import (
	"strings"
	"unicode"
)

// Chunker splits text into overlapping windows of at most Size runes. A
// window that would end inside a word is cut back to the last whitespace in
// its second half, so only very long words are split.
type Chunker struct {
	Size    int
	Overlap int
}

type Chunk struct {
	Index   int
	Start   int
	End     int
	Content string
}

func NewChunker(size, overlap int) *Chunker {
	return &Chunker{Size: size, Overlap: overlap}
}

// ChunkText returns the trimmed, non-blank windows of text. Each window
// starts Overlap runes before the end of the previous one. Invalid settings
// yield no chunks.
func (c *Chunker) ChunkText(text string) []Chunk {
	if c.Size <= 0 || c.Overlap < 0 || c.Overlap >= c.Size {
		return []Chunk{}
	}

	runes := []rune(text)
	n := len(runes)
	chunks := []Chunk{}

	for start := 0; start < n; {
		end := min(start+c.Size, n)
		if end < n && !unicode.IsSpace(runes[end]) {
			end = c.wordBoundary(runes, start, end)
		}

		if content := strings.TrimSpace(string(runes[start:end])); content != "" {
			chunks = append(chunks, Chunk{
				Index:   len(chunks),
				Start:   start,
				End:     end,
				Content: content,
			})
		}
		if end == n {
			break
		}

		next := end - c.Overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

func (c *Chunker) wordBoundary(runes []rune, start, end int) int {
	floor := start + c.Size/2
	for i := end; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
