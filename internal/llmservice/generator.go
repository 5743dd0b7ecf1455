package llmservice

import (
	"context"
	"fmt"

	"research-assistant/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/prompts"
)

var (
	summaryPrompt    = prompts.NewPromptTemplate(models.SummaryPromptTemplate, []string{"context"})
	challengePrompt  = prompts.NewPromptTemplate(models.ChallengePromptTemplate, []string{"context"})
	evaluationPrompt = prompts.NewPromptTemplate(models.EvaluationPromptTemplate, []string{"context", "questions", "a1", "a2", "a3"})
)

// Generator runs the summary, challenge and evaluation prompts against a chat provider
type Generator struct {
	provider    Provider
	temperature float64
}

func NewGenerator(provider Provider, temperature float64) *Generator {
	return &Generator{provider: provider, temperature: temperature}
}

// Summarize returns a summary of at most 150 words
func (g *Generator) Summarize(ctx context.Context, contextText string) (string, error) {
	return g.run(ctx, "summary", summaryPrompt, map[string]any{"context": contextText})
}

// GenerateChallengeQuestions returns three numbered comprehension questions
func (g *Generator) GenerateChallengeQuestions(ctx context.Context, contextText string) (string, error) {
	return g.run(ctx, "challenge", challengePrompt, map[string]any{"context": contextText})
}

// EvaluateAnswers returns feedback on each answer, justified against the context.
// questions may be empty; blank answers are sent as empty lines.
func (g *Generator) EvaluateAnswers(ctx context.Context, contextText, questions, a1, a2, a3 string) (string, error) {
	return g.run(ctx, "evaluation", evaluationPrompt, map[string]any{
		"context":   contextText,
		"questions": questions,
		"a1":        a1,
		"a2":        a2,
		"a3":        a3,
	})
}

func (g *Generator) run(ctx context.Context, task string, tmpl prompts.PromptTemplate, values map[string]any) (string, error) {
	prompt, err := tmpl.Format(values)
	if err != nil {
		return "", fmt.Errorf("failed to format %s prompt: %w", task, err)
	}

	text, err := g.provider.Generate(ctx, prompt, g.temperature)
	if err != nil {
		log.Error().Err(err).Str("task", task).Msg("Generation failed")
		return "", err
	}
	log.Debug().Str("task", task).Int("chars", len(text)).Msg("Generated text")
	return text, nil
}
