// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/geniechat/genie/internal/metrics"
	"github.com/geniechat/genie/internal/model"
	"github.com/geniechat/genie/internal/repository"
)

// Service errors.
var (
	ErrEmptyPrompt       = errors.New("prompt is empty")
	ErrUserNotFound      = errors.New("user not found")
	ErrQuotaExhausted    = errors.New("no tokens left")
	ErrGenerationFailed  = errors.New("answer generation failed")
	ErrPersistenceFailed = errors.New("failed to persist turn")
)

// maxSources caps how many citations reach the client.
const maxSources = 5

// systemInstruction is the fixed instruction block prepended to every
// generation request. Configuration constant, never derived at runtime.
const systemInstruction = "You are \"Genie\", a helpful assistant. Reply in clean, ChatGPT-style formatting so answers are easy to scan and professional.\n\n" +
	"FORMATTING RULES (follow strictly):\n" +
	"1. Structure with headers: Use ## for main sections (e.g. \"## Summary\", \"## Steps\", \"## Key points\"). Use ### for subsections when needed.\n" +
	"2. Lists: Use bullet points (- or *) for options/items; use numbered lists (1. 2. 3.) for steps or ordered items.\n" +
	"3. Emphasis: Use **bold** for key terms and important phrases. Use *italic* for subtle emphasis.\n" +
	"4. Code: Use `inline code` for one short piece (command, variable). Use fenced blocks for multiple lines:\n" +
	"   ```language\n" +
	"   code here\n" +
	"   ```\n" +
	"   Always add the language (e.g. javascript, python, bash) after the opening ```.\n" +
	"5. Tables: When comparing things, listing attributes, or showing data, use Markdown tables:\n" +
	"   | Column A | Column B |\n" +
	"   | -------- | -------- |\n" +
	"   | cell     | cell     |\n" +
	"6. Blockquotes: Use > for important takeaways, tips, or quotes.\n" +
	"7. Brevity: Short paragraphs (2-4 sentences). No filler like \"Here's the answer:\" or \"I hope this helps!\" unless it fits naturally.\n" +
	"8. Emojis: Use sparingly and only when they add clarity (e.g. ✅ ❌ \U0001f4a1 ⚠️ for tips/warnings).\n\n" +
	"Start your reply with the answer. Do not repeat the user's question."

// Store is the persistence surface the chat pipeline depends on.
type Store interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	CommitTurn(ctx context.Context, entry *model.HistoryEntry) (int, error)
	ListHistory(ctx context.Context, userID string) ([]*model.HistoryEntry, error)
}

// Searcher is the search augmentation collaborator.
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.SearchResult, error)
}

// Generator is the answer generation collaborator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// UsageRecorder captures per-turn usage events, fire-and-forget.
type UsageRecorder interface {
	RecordAsync(event model.UsageEvent)
}

// ChatService executes authenticated chat turns.
type ChatService struct {
	store         Store
	search        Searcher
	generate      Generator
	usage         UsageRecorder
	metrics       metrics.Recorder
	logger        *slog.Logger
	searchTimeout time.Duration
	llmTimeout    time.Duration
}

// ChatConfig holds ChatService construction parameters.
type ChatConfig struct {
	Store         Store
	Search        Searcher
	Generate      Generator
	Usage         UsageRecorder
	Metrics       metrics.Recorder
	Logger        *slog.Logger
	SearchTimeout time.Duration
	LLMTimeout    time.Duration
}

// NewChatService creates a ChatService.
func NewChatService(cfg ChatConfig) *ChatService {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 10 * time.Second
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 30 * time.Second
	}
	return &ChatService{
		store:         cfg.Store,
		search:        cfg.Search,
		generate:      cfg.Generate,
		usage:         cfg.Usage,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		searchTimeout: cfg.SearchTimeout,
		llmTimeout:    cfg.LLMTimeout,
	}
}

// TurnInput defines input for one chat turn.
type TurnInput struct {
	UserID string
	Prompt string
}

// TurnOutput is the result of a successful chat turn.
type TurnOutput struct {
	Answer     string
	Sources    []model.Source
	TokensLeft int
}

// HandleTurn executes one chat turn: quota check, best-effort search,
// generation, then an atomic quota decrement + history append.
// No state is mutated unless generation succeeded.
func (s *ChatService) HandleTurn(ctx context.Context, input TurnInput) (*TurnOutput, error) {
	start := time.Now()

	if strings.TrimSpace(input.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	user, err := s.store.GetUserByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	// Cheap pre-check; the commit below re-checks atomically.
	if user.TokensLeft <= 0 {
		s.metrics.IncTurnRejected("quota_exhausted")
		return nil, ErrQuotaExhausted
	}

	results := s.runSearch(ctx, input.Prompt)
	sources := filterSources(results)

	answer, err := s.runGeneration(ctx, composePrompt(input.Prompt, results))
	if err != nil {
		s.metrics.IncGenerationFailure()
		return nil, fmt.Errorf("%w: %s", ErrGenerationFailed, err)
	}

	entry := &model.HistoryEntry{
		ID:        ulid.Make().String(),
		UserID:    user.ID,
		Prompt:    input.Prompt,
		CreatedAt: time.Now().UTC(),
	}

	tokensLeft, err := s.store.CommitTurn(ctx, entry)
	if err != nil {
		if errors.Is(err, repository.ErrQuotaExhausted) {
			// Concurrent turns raced the counter to zero between the
			// pre-check and the commit.
			s.metrics.IncTurnRejected("quota_exhausted")
			return nil, ErrQuotaExhausted
		}
		return nil, fmt.Errorf("%w: %s", ErrPersistenceFailed, err)
	}

	if s.usage != nil {
		s.usage.RecordAsync(model.UsageEvent{
			ID:              ulid.Make().String(),
			UserID:          user.ID,
			PromptChars:     len(input.Prompt),
			SourceCount:     len(sources),
			TokensLeftAfter: tokensLeft,
			CreatedAt:       entry.CreatedAt,
		})
	}

	s.metrics.IncTurnCompleted()
	s.metrics.ObserveTurnDuration(time.Since(start))

	return &TurnOutput{
		Answer:     answer,
		Sources:    sources,
		TokensLeft: tokensLeft,
	}, nil
}

// History returns the user's stored prompts, newest first.
func (s *ChatService) History(ctx context.Context, userID string) ([]*model.HistoryEntry, error) {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	entries, err := s.store.ListHistory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	return entries, nil
}

// runSearch queries the search collaborator, swallowing all failures.
func (s *ChatService) runSearch(ctx context.Context, query string) []model.SearchResult {
	if s.search == nil {
		return nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()

	results, err := s.search.Search(searchCtx, query)
	if err != nil {
		s.metrics.IncSearchFailure()
		if s.logger != nil {
			s.logger.Warn("search failed, continuing without context",
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	return results
}

func (s *ChatService) runGeneration(ctx context.Context, prompt string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.llmTimeout)
	defer cancel()

	return s.generate.Generate(genCtx, prompt)
}

// filterSources converts search results into client-facing citations,
// dropping anything without an absolute http(s) URL.
func filterSources(results []model.SearchResult) []model.Source {
	sources := make([]model.Source, 0, len(results))
	for _, r := range results {
		src, ok := r.Source()
		if !ok {
			continue
		}
		sources = append(sources, src)
		if len(sources) == maxSources {
			break
		}
	}
	return sources
}

// composePrompt assembles the full generation prompt: the fixed system
// instruction, then the user query optionally prefixed with search context.
func composePrompt(prompt string, results []model.SearchResult) string {
	userPart := prompt

	if len(results) > 0 {
		stanzas := make([]string, 0, len(results))
		for _, r := range results {
			stanzas = append(stanzas, fmt.Sprintf("Title: %s\nContent: %s\nURL: %s", r.Title, r.Content, r.URL))
		}

		userPart = "Connect the user's query with the following search results to provide a comprehensive answer.\n\n" +
			"Search Context:\n" + strings.Join(stanzas, "\n\n") + "\n\n" +
			"User Query:\n" + prompt
	}

	return systemInstruction + "\n\n---\n\nUser: " + userPart + "\n\nGenie (reply in Markdown with emojis where appropriate):"
}
