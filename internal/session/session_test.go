package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"research-assistant/internal/config"
	"research-assistant/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func vectorFor(text string) []float32 {
	return []float32{1, float32(strings.Count(text, "e") + 1), float32(len(text)%11 + 1)}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return vectorFor(text), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vectorFor(t)
	}
	return out, nil
}

type fakeChat struct {
	prompts []string
	err     error
}

func (f *fakeChat) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	switch {
	case strings.Contains(prompt, "logic-based questions"):
		return "1. Why?\n2. How?\n3. When?", nil
	case strings.Contains(prompt, "Summarize"):
		return "A short summary.", nil
	case strings.Contains(prompt, "Helpful Answer:"):
		return "The answer.", nil
	default:
		return "Good feedback.", nil
	}
}

func (f *fakeChat) count(marker string) int {
	n := 0
	for _, p := range f.prompts {
		if strings.Contains(p, marker) {
			n++
		}
	}
	return n
}

type harness struct {
	session  *Session
	embedder *fakeEmbedder
	chat     *fakeChat
	keys     []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{embedder: &fakeEmbedder{}, chat: &fakeChat{}}
	s, err := New(config.Default(), func(apiKey string) (*Providers, error) {
		h.keys = append(h.keys, apiKey)
		return &Providers{Embedder: h.embedder, Chat: h.chat}, nil
	})
	require.NoError(t, err)
	h.session = s
	return h
}

func documentText() []byte {
	return []byte(strings.Repeat("The experiment measured reaction times across three groups. ", 60))
}

func (h *harness) upload(t *testing.T) {
	t.Helper()
	require.NoError(t, h.session.Upload(context.Background(), "sk-test", "paper.txt", documentText()))
}

func TestUploadWithoutInputsMakesNoProviderCalls(t *testing.T) {
	tests := []struct {
		name     string
		apiKey   string
		filename string
		data     []byte
	}{
		{name: "no key", filename: "paper.txt", data: documentText()},
		{name: "blank key", apiKey: "   ", filename: "paper.txt", data: documentText()},
		{name: "no file", apiKey: "sk-test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			err := h.session.Upload(context.Background(), tt.apiKey, tt.filename, tt.data)

			assert.ErrorIs(t, err, models.ErrMissingCredential)
			assert.Empty(t, h.keys)
			assert.Zero(t, h.embedder.calls)
			assert.Empty(t, h.chat.prompts)

			v := h.session.View()
			assert.Equal(t, StateNoDocument, v.State)
			assert.False(t, v.Ready())
			assert.Equal(t, models.InstructionMessage, v.Message)
		})
	}
}

func TestFreshSessionShowsInstruction(t *testing.T) {
	h := newHarness(t)

	v := h.session.View()

	assert.Equal(t, StateNoDocument, v.State)
	assert.Equal(t, models.InstructionMessage, v.Message)
	assert.NoError(t, v.Err)
}

func TestUploadLoadsDocument(t *testing.T) {
	h := newHarness(t)
	h.upload(t)

	v := h.session.View()
	assert.Equal(t, StateDocumentLoaded, v.State)
	assert.Equal(t, "paper.txt", v.Filename)
	assert.Equal(t, models.FormatText, v.Format)
	assert.Greater(t, v.Segments, 1)
	assert.Equal(t, "A short summary.", v.Summary)
	assert.Empty(t, v.Questions)
	assert.Empty(t, v.Message)
	assert.Equal(t, []string{"sk-test"}, h.keys)
	assert.Equal(t, 1, h.chat.count("Summarize"))
}

func TestUploadBlankKeyReusesSessionKey(t *testing.T) {
	h := newHarness(t)
	h.upload(t)

	require.NoError(t, h.session.Upload(context.Background(), "", "other.txt", documentText()))

	assert.Equal(t, []string{"sk-test", "sk-test"}, h.keys)
	assert.Equal(t, "other.txt", h.session.View().Filename)
}

func TestUploadFailuresLeaveNoDocument(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		prepare  func(h *harness)
		wantErr  error
	}{
		{
			name:     "unsupported format",
			filename: "paper.docx",
			data:     documentText(),
			wantErr:  models.ErrUnsupportedFormat,
		},
		{
			name:     "whitespace only",
			filename: "blank.txt",
			data:     []byte("   \n\t  "),
			wantErr:  models.ErrLoad,
		},
		{
			name:     "embedding failure",
			filename: "paper.txt",
			data:     documentText(),
			prepare: func(h *harness) {
				h.embedder.err = errors.Join(models.ErrEmbeddingProvider, errors.New("quota"))
			},
			wantErr: models.ErrEmbeddingProvider,
		},
		{
			name:     "summary failure",
			filename: "paper.txt",
			data:     documentText(),
			prepare: func(h *harness) {
				h.chat.err = errors.Join(models.ErrGenerationProvider, errors.New("500"))
			},
			wantErr: models.ErrGenerationProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.upload(t)
			if tt.prepare != nil {
				tt.prepare(h)
			}

			err := h.session.Upload(context.Background(), "sk-test", tt.filename, tt.data)

			assert.ErrorIs(t, err, tt.wantErr)
			v := h.session.View()
			assert.Equal(t, StateNoDocument, v.State)
			assert.Empty(t, v.Filename)
			assert.Empty(t, v.Summary)
			assert.Zero(t, v.Segments)
			assert.ErrorIs(t, v.Err, tt.wantErr)
			assert.Equal(t, models.UserMessage(err), v.Message)
		})
	}
}

func TestSelectModeRequiresDocument(t *testing.T) {
	h := newHarness(t)

	err := h.session.SelectMode(context.Background(), ModeAsk)

	assert.ErrorIs(t, err, models.ErrMissingCredential)
	assert.Equal(t, StateNoDocument, h.session.State())
}

func TestSelectModeRejectsUnknownMode(t *testing.T) {
	h := newHarness(t)
	h.upload(t)

	err := h.session.SelectMode(context.Background(), Mode("quiz"))

	assert.ErrorIs(t, err, models.ErrInvalidState)
	assert.Equal(t, StateDocumentLoaded, h.session.State())
}

func TestAskOnlyInAskMode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.session.Ask(ctx, "What was measured?")
	assert.ErrorIs(t, err, models.ErrMissingCredential)

	h.upload(t)
	_, err = h.session.Ask(ctx, "What was measured?")
	assert.ErrorIs(t, err, models.ErrInvalidState)

	require.NoError(t, h.session.SelectMode(ctx, ModeAsk))
	answer, err := h.session.Ask(ctx, "What was measured?")
	require.NoError(t, err)

	assert.Equal(t, "The answer.", answer.Content)
	v := h.session.View()
	assert.Equal(t, StateAskMode, v.State)
	assert.Equal(t, "What was measured?", v.Query)
	citation, ok := v.Citation()
	require.True(t, ok)
	assert.Contains(t, citation.Segment.Text, "reaction times")
	assert.Equal(t, "unknown", citation.Segment.PageLabel())
}

func TestAskBlankQuery(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.upload(t)
	require.NoError(t, h.session.SelectMode(ctx, ModeAsk))
	before := h.embedder.calls

	_, err := h.session.Ask(ctx, "  ")

	assert.ErrorIs(t, err, models.ErrMissingCredential)
	assert.Equal(t, before, h.embedder.calls)
	assert.Equal(t, StateAskMode, h.session.State())
}

func TestChallengeQuestionsAreCachedPerDocument(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.upload(t)

	require.NoError(t, h.session.SelectMode(ctx, ModeChallenge))
	require.NoError(t, h.session.SelectMode(ctx, ModeAsk))
	require.NoError(t, h.session.SelectMode(ctx, ModeChallenge))

	assert.Equal(t, 1, h.chat.count("logic-based questions"))
	v := h.session.View()
	assert.Equal(t, StateChallengeMode, v.State)
	assert.Equal(t, "1. Why?\n2. How?\n3. When?", v.Questions)
}

func TestChallengeQuestionFailureKeepsMode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.upload(t)
	require.NoError(t, h.session.SelectMode(ctx, ModeAsk))
	h.chat.err = errors.Join(models.ErrGenerationProvider, errors.New("timeout"))

	err := h.session.SelectMode(ctx, ModeChallenge)

	assert.ErrorIs(t, err, models.ErrGenerationProvider)
	v := h.session.View()
	assert.Equal(t, StateAskMode, v.State)
	assert.Empty(t, v.Questions)
	assert.Equal(t, "A short summary.", v.Summary)
}

func TestSubmitAnswers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.upload(t)

	_, err := h.session.SubmitAnswers(ctx, "a", "b", "c")
	assert.ErrorIs(t, err, models.ErrInvalidState)

	require.NoError(t, h.session.SelectMode(ctx, ModeChallenge))

	_, err = h.session.SubmitAnswers(ctx, " ", "", "\n")
	assert.ErrorIs(t, err, models.ErrMissingCredential)
	assert.Zero(t, h.chat.count("detailed feedback"))

	feedback, err := h.session.SubmitAnswers(ctx, "Because of noise", "", "In spring")
	require.NoError(t, err)

	assert.Equal(t, "Good feedback.", feedback)
	assert.Equal(t, 1, h.chat.count("detailed feedback"))
	last := h.chat.prompts[len(h.chat.prompts)-1]
	assert.Contains(t, last, "1. Because of noise")
	assert.Contains(t, last, "3. In spring")
	assert.Contains(t, last, "1. Why?")

	v := h.session.View()
	assert.Equal(t, [3]string{"Because of noise", "", "In spring"}, v.Answers)
	assert.Equal(t, "Good feedback.", v.Evaluation)
}

func TestModeSwitchClearsPreviousInteraction(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.upload(t)

	require.NoError(t, h.session.SelectMode(ctx, ModeAsk))
	_, err := h.session.Ask(ctx, "What was measured?")
	require.NoError(t, err)

	require.NoError(t, h.session.SelectMode(ctx, ModeChallenge))
	v := h.session.View()
	assert.Empty(t, v.Query)
	assert.Nil(t, v.Answer)

	_, err = h.session.SubmitAnswers(ctx, "one", "two", "three")
	require.NoError(t, err)

	require.NoError(t, h.session.SelectMode(ctx, ModeAsk))
	v = h.session.View()
	assert.Equal(t, [3]string{}, v.Answers)
	assert.Empty(t, v.Evaluation)
	assert.Equal(t, "1. Why?\n2. How?\n3. When?", v.Questions)
}

func TestReuploadResetsDerivedState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.upload(t)
	require.NoError(t, h.session.SelectMode(ctx, ModeChallenge))
	_, err := h.session.SubmitAnswers(ctx, "one", "", "")
	require.NoError(t, err)

	require.NoError(t, h.session.Upload(ctx, "sk-test", "second.txt", documentText()))

	v := h.session.View()
	assert.Equal(t, StateDocumentLoaded, v.State)
	assert.Equal(t, "second.txt", v.Filename)
	assert.Empty(t, v.Questions)
	assert.Equal(t, [3]string{}, v.Answers)
	assert.Empty(t, v.Evaluation)

	require.NoError(t, h.session.SelectMode(ctx, ModeChallenge))
	assert.Equal(t, 2, h.chat.count("logic-based questions"))
}

func TestViewIsACopy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.upload(t)
	require.NoError(t, h.session.SelectMode(ctx, ModeAsk))
	_, err := h.session.Ask(ctx, "What was measured?")
	require.NoError(t, err)

	v := h.session.View()
	v.Answer.Sources[0].Segment.Text = "mutated"
	v.Answer.Content = "mutated"

	again := h.session.View()
	assert.Equal(t, "The answer.", again.Answer.Content)
	assert.NotEqual(t, "mutated", again.Answer.Sources[0].Segment.Text)
}
