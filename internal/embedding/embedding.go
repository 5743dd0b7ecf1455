package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"research-assistant/internal/config"
	"research-assistant/internal/helper"
	"research-assistant/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder is the embedding provider boundary used by indexing and retrieval
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

var errNoEmbedding = errors.New("no embedding returned")

// Client embeds text with a langchaingo embedder, one bounded call per batch
type Client struct {
	embedder  embeddings.Embedder
	policy    *helper.CallPolicy
	batchSize int
}

func NewClient(embedder embeddings.Embedder, policy *helper.CallPolicy, batchSize int) *Client {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Client{embedder: embedder, policy: policy, batchSize: batchSize}
}

// NewOpenAIEmbedder creates an embedder for an OpenAI-compatible endpoint
func NewOpenAIEmbedder(cfg config.ProviderConfig, apiKey string) (*Client, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.EmbeddingModel,
	}).Msg("Creating embedder")

	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(apiKey, "Bearer ")),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize client: %w", models.ErrEmbeddingProvider, err)
	}
	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.EmbedBatchSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create embedder: %w", models.ErrEmbeddingProvider, err)
	}
	return NewClient(embedder, helper.NewCallPolicy("embedding", cfg), cfg.EmbedBatchSize), nil
}

// Embed returns the vector for a single text, typically a query
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		v, err := c.embedder.EmbedQuery(ctx, text)
		if err != nil {
			return err
		}
		if len(v) == 0 {
			return errNoEmbedding
		}
		vector = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingProvider, err)
	}
	return vector, nil
}

// EmbedBatch returns one vector per text in input order and fails as a whole
// if any batch fails
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		batch := texts[start:min(start+c.batchSize, len(texts))]

		var out [][]float32
		err := c.policy.Do(ctx, func(ctx context.Context) error {
			v, err := c.embedder.EmbedDocuments(ctx, batch)
			if err != nil {
				return err
			}
			if len(v) != len(batch) {
				return fmt.Errorf("expected %d embeddings, got %d", len(batch), len(v))
			}
			for i := range v {
				if len(v[i]) == 0 {
					return errNoEmbedding
				}
			}
			out = v
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: batch starting at %d: %w", models.ErrEmbeddingProvider, start, err)
		}
		vectors = append(vectors, out...)
	}

	log.Debug().Int("texts", len(texts)).Int("batch_size", c.batchSize).Msg("Generated embeddings")
	return vectors, nil
}
