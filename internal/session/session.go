package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"research-assistant/internal/chromemdb"
	"research-assistant/internal/config"
	"research-assistant/internal/embedding"
	"research-assistant/internal/llmservice"
	"research-assistant/internal/metrics"
	"research-assistant/internal/models"
	"research-assistant/internal/parser"
	"research-assistant/internal/rag"

	"github.com/rs/zerolog/log"
)

// State is where the session is in the upload → mode flow
type State int

const (
	StateNoDocument State = iota
	StateDocumentLoaded
	StateAskMode
	StateChallengeMode
)

func (s State) String() string {
	switch s {
	case StateDocumentLoaded:
		return "DocumentLoaded"
	case StateAskMode:
		return "AskMode"
	case StateChallengeMode:
		return "ChallengeMode"
	default:
		return "NoDocument"
	}
}

// Mode is an interaction mode chosen after upload
type Mode string

const (
	ModeAsk       Mode = "ask"
	ModeChallenge Mode = "challenge"
)

// Providers are the external services bound to one api key
type Providers struct {
	Embedder embedding.Embedder
	Chat     llmservice.Provider
}

// ProviderFactory creates providers for the api key entered by the user
type ProviderFactory func(apiKey string) (*Providers, error)

// OpenAIProviders is the production factory
func OpenAIProviders(cfg config.ProviderConfig) ProviderFactory {
	return func(apiKey string) (*Providers, error) {
		embedder, err := embedding.NewOpenAIEmbedder(cfg, apiKey)
		if err != nil {
			return nil, err
		}
		chat, err := llmservice.NewOpenAIClient(cfg, apiKey)
		if err != nil {
			return nil, err
		}
		return &Providers{Embedder: embedder, Chat: chat}, nil
	}
}

// document holds everything derived from one upload; it is replaced as a whole
type document struct {
	filename    string
	format      models.Format
	segments    []models.Segment
	index       *chromemdb.Index
	contextText string
	summary     string
	questions   string
	rag         *rag.RAG
	generator   *llmservice.Generator
}

// Session is the per-user controller. All actions are serialised.
type Session struct {
	mu           sync.Mutex
	cfg          *config.Config
	newProviders ProviderFactory
	loader       *parser.Loader
	chunker      *parser.Chunker

	apiKey     string
	state      State
	doc        *document
	lastQuery  string
	lastAnswer *models.Answer
	answers    [3]string
	evaluation string
	lastErr    error

	// unix nanos of the last action, read by the web store without mu
	updatedAt atomic.Int64
}

// New creates an empty session; factory is only called on upload
func New(cfg *config.Config, factory ProviderFactory) (*Session, error) {
	chunker, err := parser.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	s := &Session{
		cfg:          cfg,
		newProviders: factory,
		loader:       parser.NewLoader(cfg.MaxUploadBytes()),
		chunker:      chunker,
	}
	s.touch()
	return s, nil
}

// Upload replaces the session's document. Missing inputs leave the session
// empty without calling any provider. A blank key reuses the one already entered.
func (s *Session) Upload(ctx context.Context, apiKey, filename string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	s.reset()
	if key := strings.TrimSpace(apiKey); key != "" {
		s.apiKey = key
	}
	if s.apiKey == "" || filename == "" || len(data) == 0 {
		return s.fail(fmt.Errorf("%w: upload needs both a file and an api key", models.ErrMissingCredential))
	}

	start := time.Now()
	doc, err := s.ingest(ctx, models.Document{Filename: filename, Data: data})
	metrics.ObserveDocument(formatLabel(filename), segmentCount(doc), err)
	if err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("Upload failed")
		return s.fail(err)
	}

	s.doc = doc
	s.state = StateDocumentLoaded
	log.Info().Str("filename", filename).Int("segments", len(doc.segments)).Dur("elapsed", time.Since(start)).Msg("Document ready")
	return nil
}

// ingest runs load → chunk → index → summary; nothing is kept on failure
func (s *Session) ingest(ctx context.Context, raw models.Document) (*document, error) {
	format, err := models.DetectFormat(raw.Filename)
	if err != nil {
		return nil, err
	}
	raw.Format = format

	records, err := s.loader.Load(ctx, raw)
	if err != nil {
		return nil, err
	}
	segments := s.chunker.Split(records)
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no text found in %s", models.ErrLoad, raw.Filename)
	}

	providers, err := s.newProviders(s.apiKey)
	if err != nil {
		return nil, err
	}

	index, err := chromemdb.NewIndexer(providers.Embedder).Build(ctx, segments)
	if err != nil {
		return nil, err
	}

	generator := llmservice.NewGenerator(providers.Chat, s.cfg.RAG.Temperature)
	contextText := parser.ContextText(segments, s.cfg.RAG.ContextChunks)
	summary, err := generator.Summarize(ctx, contextText)
	if err != nil {
		return nil, err
	}

	retriever := rag.NewRetriever(providers.Embedder, index, s.cfg.RAG.TopK)
	return &document{
		filename:    raw.Filename,
		format:      format,
		segments:    segments,
		index:       index,
		contextText: contextText,
		summary:     summary,
		rag:         rag.NewRAG(retriever, providers.Chat, s.cfg.RAG.QATemperature),
		generator:   generator,
	}, nil
}

// SelectMode switches between Ask and Challenge. Each switch drops the previous
// mode's interaction; challenge questions are generated once per document.
func (s *Session) SelectMode(ctx context.Context, mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.lastErr = nil

	if s.doc == nil {
		return s.fail(fmt.Errorf("%w: no document loaded", models.ErrMissingCredential))
	}

	switch mode {
	case ModeAsk:
		s.clearInteraction()
		s.state = StateAskMode
	case ModeChallenge:
		if s.doc.questions == "" {
			questions, err := s.doc.generator.GenerateChallengeQuestions(ctx, s.doc.contextText)
			if err != nil {
				return s.fail(err)
			}
			s.doc.questions = questions
		}
		s.clearInteraction()
		s.state = StateChallengeMode
	default:
		return s.fail(fmt.Errorf("%w: unknown mode %q", models.ErrInvalidState, mode))
	}

	log.Debug().Str("mode", string(mode)).Msg("Mode selected")
	return nil
}

// Ask answers a free-form query from retrieved context
func (s *Session) Ask(ctx context.Context, query string) (*models.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.lastErr = nil

	if s.doc == nil {
		return nil, s.fail(fmt.Errorf("%w: no document loaded", models.ErrMissingCredential))
	}
	if s.state != StateAskMode {
		return nil, s.fail(fmt.Errorf("%w: ask requires Ask Anything mode", models.ErrInvalidState))
	}

	s.lastQuery = query
	s.lastAnswer = nil
	answer, err := s.doc.rag.Query(ctx, query)
	if err != nil {
		return nil, s.fail(err)
	}
	s.lastAnswer = answer
	return answer, nil
}

// SubmitAnswers evaluates up to three answers against the document context
func (s *Session) SubmitAnswers(ctx context.Context, a1, a2, a3 string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.lastErr = nil

	if s.doc == nil {
		return "", s.fail(fmt.Errorf("%w: no document loaded", models.ErrMissingCredential))
	}
	if s.state != StateChallengeMode || s.doc.questions == "" {
		return "", s.fail(fmt.Errorf("%w: answers require Challenge Me mode", models.ErrInvalidState))
	}

	s.answers = [3]string{strings.TrimSpace(a1), strings.TrimSpace(a2), strings.TrimSpace(a3)}
	s.evaluation = ""
	if s.answers == [3]string{} {
		return "", s.fail(fmt.Errorf("%w: enter at least one answer", models.ErrMissingCredential))
	}

	evaluation, err := s.doc.generator.EvaluateAnswers(ctx, s.doc.contextText, s.doc.questions, s.answers[0], s.answers[1], s.answers[2])
	if err != nil {
		return "", s.fail(err)
	}
	s.evaluation = evaluation
	return evaluation, nil
}

// View is a read-only snapshot of the session used for rendering
type View struct {
	State      State
	Filename   string
	Format     models.Format
	Segments   int
	Summary    string
	Questions  string
	Answers    [3]string
	Evaluation string
	Query      string
	Answer     *models.Answer
	Err        error
	Message    string
	HasAPIKey  bool
}

// Ready reports whether a document is loaded
func (v View) Ready() bool {
	return v.State != StateNoDocument
}

// InAskMode reports whether questions can be asked
func (v View) InAskMode() bool {
	return v.State == StateAskMode
}

// InChallengeMode reports whether answers can be submitted
func (v View) InChallengeMode() bool {
	return v.State == StateChallengeMode
}

// Citation is the top-ranked source of the last answer
func (v View) Citation() (models.SearchResult, bool) {
	if v.Answer == nil {
		return models.SearchResult{}, false
	}
	return v.Answer.Citation()
}

// View returns a copy of the session's current state
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		State:      s.state,
		Answers:    s.answers,
		Evaluation: s.evaluation,
		Query:      s.lastQuery,
		Err:        s.lastErr,
		HasAPIKey:  s.apiKey != "",
	}
	if s.lastAnswer != nil {
		answer := *s.lastAnswer
		answer.Sources = append([]models.SearchResult(nil), s.lastAnswer.Sources...)
		v.Answer = &answer
	}
	if s.doc != nil {
		v.Filename = s.doc.filename
		v.Format = s.doc.format
		v.Segments = len(s.doc.segments)
		v.Summary = s.doc.summary
		v.Questions = s.doc.questions
	}
	switch {
	case s.lastErr != nil:
		v.Message = models.UserMessage(s.lastErr)
	case s.doc == nil:
		v.Message = models.InstructionMessage
	}
	return v
}

// State returns the current interaction state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UpdatedAt is the time of the last action, used for idle expiry. It never
// waits for a running action.
func (s *Session) UpdatedAt() time.Time {
	return time.Unix(0, s.updatedAt.Load())
}

// reset drops every piece of derived state; the api key is kept
func (s *Session) reset() {
	s.state = StateNoDocument
	s.doc = nil
	s.lastErr = nil
	s.clearInteraction()
}

func (s *Session) clearInteraction() {
	s.lastQuery = ""
	s.lastAnswer = nil
	s.answers = [3]string{}
	s.evaluation = ""
}

func (s *Session) fail(err error) error {
	s.lastErr = err
	return err
}

func (s *Session) touch() {
	s.updatedAt.Store(time.Now().UnixNano())
}

func formatLabel(filename string) string {
	format, err := models.DetectFormat(filename)
	if err != nil {
		return "unsupported"
	}
	return string(format)
}

func segmentCount(doc *document) int {
	if doc == nil {
		return 0
	}
	return len(doc.segments)
}
