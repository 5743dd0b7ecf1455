package parser

import (
	"fmt"
	"strings"

	"research-assistant/internal/models"
)

// Chunker splits page records into fixed-size overlapping segments.
// Sizes are counted in characters (runes), not bytes.
type Chunker struct {
	ChunkSize    int
	ChunkOverlap int
}

func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	return &Chunker{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}, nil
}

// Split chunks every record independently so each segment keeps its page.
// Positions run across the whole document in source order.
func (c *Chunker) Split(records []models.PageRecord) []models.Segment {
	var segments []models.Segment
	for _, record := range records {
		if strings.TrimSpace(record.Text) == "" {
			continue
		}
		for _, text := range chunkContent(record.Text, c.ChunkSize, c.ChunkOverlap) {
			segments = append(segments, models.Segment{
				Text:     text,
				Page:     record.Page,
				Position: len(segments),
			})
		}
	}
	return segments
}

// chunk content into windows of maxChars advancing maxChars-overlapChars each step;
// the last window may be shorter
func chunkContent(content string, maxChars, overlapChars int) []string {
	runes := []rune(content)
	contentLen := len(runes)
	if contentLen == 0 {
		return nil
	}

	var chunks []string
	step := maxChars - overlapChars
	for start := 0; ; start += step {
		end := min(start+maxChars, contentLen)
		chunks = append(chunks, string(runes[start:end]))
		if end == contentLen {
			break
		}
	}
	return chunks
}

// Reconstruct joins consecutive segments of one record, dropping the shared overlap
func Reconstruct(segments []models.Segment, overlapChars int) string {
	var content strings.Builder
	for i, segment := range segments {
		text := segment.Text
		if i > 0 {
			runes := []rune(text)
			text = string(runes[min(overlapChars, len(runes)):])
		}
		content.WriteString(text)
	}
	return content.String()
}

// ContextText joins the first n segments, the context used for summary and challenge prompts
func ContextText(segments []models.Segment, n int) string {
	n = min(n, len(segments))
	texts := make([]string, 0, n)
	for _, segment := range segments[:n] {
		texts = append(texts, segment.Text)
	}
	return strings.Join(texts, models.ContextSeparator)
}
