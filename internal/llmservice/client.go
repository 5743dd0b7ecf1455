package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"research-assistant/internal/config"
	"research-assistant/internal/helper"
	"research-assistant/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider is the chat generation boundary
type Provider interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Client generates text with a langchaingo chat model
type Client struct {
	llm    llms.Model
	policy *helper.CallPolicy
}

func NewClient(llm llms.Model, policy *helper.CallPolicy) *Client {
	return &Client{llm: llm, policy: policy}
}

// NewOpenAIClient creates a chat client for an OpenAI-compatible endpoint
func NewOpenAIClient(cfg config.ProviderConfig, apiKey string) (*Client, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":   cfg.BaseURL,
		"chat_model": cfg.ChatModel,
	}).Msg("Creating chat client")

	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(apiKey, "Bearer ")),
		openai.WithModel(cfg.ChatModel),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize client: %w", models.ErrGenerationProvider, err)
	}
	return NewClient(llm, helper.NewCallPolicy("chat", cfg)), nil
}

// Generate sends a single human message and returns the first choice
func (c *Client) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	msgContent := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}

	var text string
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		res, err := c.llm.GenerateContent(ctx, msgContent, llms.WithTemperature(temperature))
		if err != nil {
			return fmt.Errorf("%w: %w", models.ErrGenerationProvider, err)
		}
		if res == nil || len(res.Choices) == 0 || strings.TrimSpace(res.Choices[0].Content) == "" {
			return backoff.Permanent(models.ErrEmptyResponse)
		}
		text = strings.TrimSpace(res.Choices[0].Content)
		return nil
	})
	switch {
	case err == nil:
		return text, nil
	case errors.Is(err, models.ErrGenerationProvider), errors.Is(err, models.ErrEmptyResponse):
		return "", err
	default:
		// limiter or context failures before the provider was reached
		return "", fmt.Errorf("%w: %w", models.ErrGenerationProvider, err)
	}
}
