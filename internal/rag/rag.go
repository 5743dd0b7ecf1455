package rag

import (
	"context"
	"fmt"
	"strings"

	"research-assistant/internal/chromemdb"
	"research-assistant/internal/embedding"
	"research-assistant/internal/llmservice"
	"research-assistant/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/prompts"
)

var qaPrompt = prompts.NewPromptTemplate(models.QAPromptTemplate, []string{"context", "question"})

// Retriever finds the segments closest to a free-text query
type Retriever struct {
	embedder embedding.Embedder
	index    *chromemdb.Index
	topK     int
}

func NewRetriever(embedder embedding.Embedder, index *chromemdb.Index, topK int) *Retriever {
	return &Retriever{embedder: embedder, index: index, topK: max(1, topK)}
}

// Retrieve embeds query and returns up to k ranked segments, k <= 0 uses the default
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", models.ErrMissingCredential)
	}
	if k <= 0 {
		k = r.topK
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.index.Query(ctx, vector, k)
}

// RAG answers questions from retrieved context
type RAG struct {
	retriever   *Retriever
	provider    llmservice.Provider
	temperature float64
}

func NewRAG(retriever *Retriever, provider llmservice.Provider, temperature float64) *RAG {
	return &RAG{retriever: retriever, provider: provider, temperature: temperature}
}

// Query retrieves the top segments, stuffs them into the QA prompt and
// returns the generated answer with its ranked sources
func (r *RAG) Query(ctx context.Context, query string) (*models.Answer, error) {
	sources, err := r.retriever.Retrieve(ctx, query, 0)
	if err != nil {
		return nil, err
	}

	var context strings.Builder
	for i, s := range sources {
		if i > 0 {
			context.WriteString(models.SourceSeparator)
		}
		context.WriteString(s.Segment.Text)
	}

	prompt, err := qaPrompt.Format(map[string]any{
		"context":  context.String(),
		"question": query,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to format qa prompt: %w", err)
	}

	content, err := r.provider.Generate(ctx, prompt, r.temperature)
	if err != nil {
		return nil, err
	}

	answer := &models.Answer{Query: query, Content: content, Sources: sources}
	if top, ok := answer.Citation(); ok {
		log.Debug().Int("sources", len(sources)).Str("page", top.Segment.PageLabel()).Float64("distance", top.Distance).Msg("Answered query")
	}
	return answer, nil
}
