package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"research-assistant/internal/config"
	"research-assistant/internal/helper"
	"research-assistant/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder implements the langchaingo embeddings.Embedder interface
type fakeEmbedder struct {
	batches  [][]string
	queries  []string
	failOn   int
	failures int
	short    bool
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	if f.failOn > 0 && len(f.batches) == f.failOn && f.failures > 0 {
		f.failures--
		return nil, errors.New("429 rate limited")
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, []float32{float32(len(t)), 1})
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.queries = append(f.queries, text)
	if text == "" {
		return nil, nil
	}
	return []float32{float32(len(text)), 1}, nil
}

func noRetry() *helper.CallPolicy {
	return &helper.CallPolicy{Name: "embedding", Timeout: time.Second}
}

func TestEmbedBatchSplitsIntoBatchesInOrder(t *testing.T) {
	fake := &fakeEmbedder{}
	client := NewClient(fake, noRetry(), 2)

	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)

	assert.Len(t, fake.batches, 3)
	require.Len(t, vectors, 5)
	for i, v := range vectors {
		assert.Equal(t, float32(i+1), v[0])
	}
}

func TestEmbedBatchAbortsOnFirstFailure(t *testing.T) {
	fake := &fakeEmbedder{failOn: 2, failures: 1}
	client := NewClient(fake, noRetry(), 1)

	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b", "c"})

	assert.ErrorIs(t, err, models.ErrEmbeddingProvider)
	assert.Nil(t, vectors)
	assert.Len(t, fake.batches, 2, "no batch is sent after a failure")
}

func TestEmbedBatchRetriesTransientFailure(t *testing.T) {
	fake := &fakeEmbedder{failOn: 1, failures: 1}
	policy := &helper.CallPolicy{Name: "embedding", Timeout: time.Second, MaxRetries: 2, RetryInterval: time.Millisecond}
	client := NewClient(fake, policy, 10)

	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Len(t, vectors, 2)
	assert.Len(t, fake.batches, 2)
}

func TestEmbedBatchRejectsCountMismatch(t *testing.T) {
	client := NewClient(&fakeEmbedder{short: true}, noRetry(), 10)

	_, err := client.EmbedBatch(context.Background(), []string{"a", "b"})

	assert.ErrorIs(t, err, models.ErrEmbeddingProvider)
}

func TestEmbed(t *testing.T) {
	fake := &fakeEmbedder{}
	client := NewClient(fake, noRetry(), 10)

	v, err := client.Embed(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1}, v)

	_, err = client.Embed(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrEmbeddingProvider)
}

func TestNewOpenAIEmbedder(t *testing.T) {
	cfg := config.Default().Provider
	cfg.BaseURL = "http://127.0.0.1:1/v1"

	client, err := NewOpenAIEmbedder(cfg, "sk-test")
	require.NoError(t, err)
	assert.Equal(t, cfg.EmbedBatchSize, client.batchSize)
}
