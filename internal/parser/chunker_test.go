package parser

import (
	"strings"
	"testing"

	"research-assistant/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleText builds n characters of non-repeating looking prose
func sampleText(n int) string {
	words := []string{"alpha ", "beta ", "gamma ", "delta ", "epsilon ", "zeta ", "eta ", "theta "}
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		b.WriteString(words[i%len(words)])
	}
	return b.String()[:n]
}

func TestNewChunkerValidatesParameters(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{name: "valid", size: 1000, overlap: 200},
		{name: "no overlap", size: 10, overlap: 0},
		{name: "zero size", size: 0, overlap: 0, wantErr: true},
		{name: "overlap equals size", size: 100, overlap: 100, wantErr: true},
		{name: "negative overlap", size: 100, overlap: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.size, tt.overlap)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSplitThreeThousandCharacters(t *testing.T) {
	chunker, err := NewChunker(1000, 200)
	require.NoError(t, err)

	text := sampleText(3000)
	segments := chunker.Split([]models.PageRecord{{Text: text}})

	require.Len(t, segments, 4)
	assert.Equal(t, text[0:1000], segments[0].Text)
	assert.Equal(t, text[800:1800], segments[1].Text)
	assert.Equal(t, text[1600:2600], segments[2].Text)
	assert.Equal(t, text[2400:3000], segments[3].Text)
	for i, s := range segments {
		assert.LessOrEqual(t, len([]rune(s.Text)), 1000)
		assert.Equal(t, i, s.Position)
		assert.False(t, s.HasPage())
	}
}

func TestSplitOverlapAndReconstruction(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		size    int
		overlap int
	}{
		{name: "shorter than one chunk", length: 120, size: 500, overlap: 50},
		{name: "exact chunk", length: 500, size: 500, overlap: 50},
		{name: "one past chunk", length: 501, size: 500, overlap: 50},
		{name: "no overlap", length: 2048, size: 256, overlap: 0},
		{name: "large overlap", length: 1000, size: 100, overlap: 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunker, err := NewChunker(tt.size, tt.overlap)
			require.NoError(t, err)

			text := sampleText(tt.length)
			segments := chunker.Split([]models.PageRecord{{Text: text, Page: 3}})
			require.NotEmpty(t, segments)

			for i, s := range segments {
				assert.LessOrEqual(t, len([]rune(s.Text)), tt.size)
				assert.Equal(t, 3, s.Page)
				if i > 0 {
					prev := []rune(segments[i-1].Text)
					cur := []rune(s.Text)
					assert.Equal(t, string(prev[len(prev)-tt.overlap:]), string(cur[:tt.overlap]),
						"segments %d and %d must share the overlap", i-1, i)
				}
				if i < len(segments)-1 {
					assert.Len(t, []rune(s.Text), tt.size)
				}
			}
			assert.Equal(t, text, Reconstruct(segments, tt.overlap))
		})
	}
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	chunker, err := NewChunker(4, 1)
	require.NoError(t, err)

	segments := chunker.Split([]models.PageRecord{{Text: "héllo wörld"}})

	for _, s := range segments {
		assert.LessOrEqual(t, len([]rune(s.Text)), 4)
	}
	assert.Equal(t, "héll", segments[0].Text)
	assert.Equal(t, "héllo wörld", Reconstruct(segments, 1))
}

func TestSplitKeepsPageOrderAndSkipsBlankPages(t *testing.T) {
	chunker, err := NewChunker(10, 2)
	require.NoError(t, err)

	records := []models.PageRecord{
		{Text: "first page text here", Page: 1},
		{Text: "   \n", Page: 2},
		{Text: "third page", Page: 3},
	}
	segments := chunker.Split(records)

	var pages []int
	for i, s := range segments {
		assert.Equal(t, i, s.Position)
		pages = append(pages, s.Page)
	}
	assert.Equal(t, []int{1, 1, 1, 3}, pages)
	assert.Equal(t, "third page", segments[3].Text)
	assert.Equal(t, "3", segments[3].PageLabel())
}

func TestSplitIsDeterministic(t *testing.T) {
	chunker, err := NewChunker(300, 40)
	require.NoError(t, err)

	records := []models.PageRecord{{Text: sampleText(2500), Page: 1}, {Text: sampleText(700), Page: 2}}
	assert.Equal(t, chunker.Split(records), chunker.Split(records))
}

func TestContextText(t *testing.T) {
	segments := []models.Segment{{Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "d"}}

	assert.Equal(t, "a\nb\nc", ContextText(segments, 3))
	assert.Equal(t, "a\nb\nc\nd", ContextText(segments, 10))
	assert.Equal(t, "", ContextText(nil, 3))
}
