package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"

	"research-assistant/internal/embedding"
	"research-assistant/internal/models"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

const collectionName = "segments"

// meta data keys stored with each document
const (
	metaPage     = "page"
	metaPosition = "position"
)

var errNoEmbeddingFunc = errors.New("segments must be embedded before they are added")

// Index is an in-memory chromem-go collection holding one document's segments
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	segments   []models.Segment
}

// NewIndex creates an empty in-memory index
func NewIndex() (*Index, error) {
	db := chromem.NewDB()
	// vectors always come from the embedding provider, never from chromem
	c, err := db.CreateCollection(collectionName, nil, func(ctx context.Context, text string) ([]float32, error) {
		return nil, errNoEmbeddingFunc
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %v", err)
	}
	return &Index{db: db, collection: c}, nil
}

// Add inserts segments with their vectors; both slices are parallel
func (i *Index) Add(ctx context.Context, segments []models.Segment, vectors [][]float32) error {
	if len(segments) != len(vectors) {
		return fmt.Errorf("segments and vectors length mismatch: %d != %d", len(segments), len(vectors))
	}

	docs := make([]chromem.Document, len(segments))
	for n, segment := range segments {
		if segment.Position != len(i.segments)+n {
			return fmt.Errorf("segment position %d out of order, expected %d", segment.Position, len(i.segments)+n)
		}
		docs[n] = chromem.Document{
			ID:        strconv.Itoa(segment.Position),
			Content:   segment.Text,
			Metadata:  createMetadata(segment),
			Embedding: vectors[n],
		}
	}

	if err := i.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %v", err)
	}
	i.segments = append(i.segments, segments...)
	return nil
}

// Query returns the k segments closest to vector, ties broken by chunk order
func (i *Index) Query(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	count := i.collection.Count()
	if count == 0 {
		return nil, nil
	}

	// rank the whole collection so ties at the k boundary resolve by position
	results, err := i.collection.QueryEmbedding(ctx, vector, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		pos, err := strconv.Atoi(r.ID)
		if err != nil || pos < 0 || pos >= len(i.segments) {
			return nil, fmt.Errorf("unknown document id %q in collection", r.ID)
		}
		out = append(out, models.SearchResult{
			Segment:    i.segments[pos],
			Similarity: float64(r.Similarity),
			Distance:   1 - float64(r.Similarity),
		})
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Distance != out[b].Distance {
			return out[a].Distance < out[b].Distance
		}
		return out[a].Segment.Position < out[b].Segment.Position
	})

	return out[:min(k, len(out))], nil
}

// Len is the number of indexed segments
func (i *Index) Len() int {
	return len(i.segments)
}

// Segments returns the indexed segments in document order
func (i *Index) Segments() []models.Segment {
	return append([]models.Segment(nil), i.segments...)
}

// Indexer builds a fresh index for a document's segments
type Indexer struct {
	embedder embedding.Embedder
}

func NewIndexer(embedder embedding.Embedder) *Indexer {
	return &Indexer{embedder: embedder}
}

// Build embeds every segment and returns a complete index, or nothing at all
func (x *Indexer) Build(ctx context.Context, segments []models.Segment) (*Index, error) {
	texts := make([]string, len(segments))
	for n, s := range segments {
		texts[n] = s.Text
	}

	vectors, err := x.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(segments) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", models.ErrEmbeddingProvider, len(segments), len(vectors))
	}

	index, err := NewIndex()
	if err != nil {
		return nil, err
	}
	if err := index.Add(ctx, segments, vectors); err != nil {
		return nil, err
	}

	log.Info().Int("segments", index.Len()).Msg("Built similarity index")
	return index, nil
}

func createMetadata(segment models.Segment) map[string]string {
	return map[string]string{
		metaPage:     strconv.Itoa(segment.Page),
		metaPosition: strconv.Itoa(segment.Position),
	}
}
