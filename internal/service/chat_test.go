package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geniechat/genie/internal/metrics"
	"github.com/geniechat/genie/internal/model"
	"github.com/geniechat/genie/internal/repository"
)

type fakeStore struct {
	mu      sync.Mutex
	users   map[string]*model.User
	history []*model.HistoryEntry

	commitErr   error
	commitCalls int
}

func newFakeStore(users ...*model.User) *fakeStore {
	s := &fakeStore{users: make(map[string]*model.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *fakeStore) CommitTurn(ctx context.Context, entry *model.HistoryEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitCalls++
	if s.commitErr != nil {
		return 0, s.commitErr
	}
	user := s.users[entry.UserID]
	if user.TokensLeft <= 0 {
		return 0, repository.ErrQuotaExhausted
	}
	user.TokensLeft--
	s.history = append(s.history, entry)
	return user.TokensLeft, nil
}

func (s *fakeStore) ListHistory(ctx context.Context, userID string) ([]*model.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []*model.HistoryEntry
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].UserID == userID {
			entries = append(entries, s.history[i])
		}
	}
	return entries, nil
}

type fakeSearcher struct {
	results []model.SearchResult
	err     error
	calls   int
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	f.calls++
	return f.results, f.err
}

type fakeGenerator struct {
	answer     string
	err        error
	lastPrompt string
	calls      int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeUsage struct {
	mu     sync.Mutex
	events []model.UsageEvent
}

func (f *fakeUsage) RecordAsync(event model.UsageEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func testUser(id string, tokens int) *model.User {
	return &model.User{
		ID:         id,
		Email:      id + "@example.com",
		TokensLeft: tokens,
		CreatedAt:  time.Now().UTC(),
	}
}

func newTestService(store *fakeStore, search Searcher, gen Generator, usage UsageRecorder, rec metrics.Recorder) *ChatService {
	return NewChatService(ChatConfig{
		Store:    store,
		Search:   search,
		Generate: gen,
		Usage:    usage,
		Metrics:  rec,
	})
}

func TestHandleTurn_EmptyPrompt(t *testing.T) {
	store := newFakeStore(testUser("u1", 5))
	gen := &fakeGenerator{answer: "hi"}
	svc := newTestService(store, nil, gen, nil, nil)

	for _, prompt := range []string{"", "   ", "\n\t "} {
		_, err := svc.HandleTurn(context.Background(), TurnInput{UserID: "u1", Prompt: prompt})
		if !errors.Is(err, ErrEmptyPrompt) {
			t.Fatalf("prompt %q: expected ErrEmptyPrompt, got %v", prompt, err)
		}
	}

	if gen.calls != 0 {
		t.Errorf("generator should not be called for empty prompts, got %d calls", gen.calls)
	}
	if store.commitCalls != 0 {
		t.Errorf("no commit expected for empty prompts, got %d", store.commitCalls)
	}
}

func TestHandleTurn_UserNotFound(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, &fakeGenerator{answer: "hi"}, nil, nil)

	_, err := svc.HandleTurn(context.Background(), TurnInput{UserID: "ghost", Prompt: "hello"})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestHandleTurn_QuotaExhausted(t *testing.T) {
	store := newFakeStore(testUser("u1", 0))
	gen := &fakeGenerator{answer: "hi"}
	search := &fakeSearcher{}
	rec := metrics.NewInMemory()
	svc := newTestService(store, search, gen, nil, rec)

	_, err := svc.HandleTurn(context.Background(), TurnInput{UserID: "u1", Prompt: "hello"})
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}

	// Nothing downstream of the quota check may run.
	if search.calls != 0 {
		t.Errorf("search should not run with zero tokens, got %d calls", search.calls)
	}
	if gen.calls != 0 {
		t.Errorf("generator should not run with zero tokens, got %d calls", gen.calls)
	}
	if store.commitCalls != 0 {
		t.Errorf("no commit expected with zero tokens, got %d", store.commitCalls)
	}
	if got := rec.Snapshot().TurnsRejectedQuota; got != 1 {
		t.Errorf("expected 1 rejected turn, got %d", got)
	}
}

func TestHandleTurn_GenerationFailureLeavesStateUntouched(t *testing.T) {
	store := newFakeStore(testUser("u1", 3))
	gen := &fakeGenerator{err: errors.New("upstream 500")}
	usage := &fakeUsage{}
	rec := metrics.NewInMemory()
	svc := newTestService(store, nil, gen, usage, rec)

	_, err := svc.HandleTurn(context.Background(), TurnInput{UserID: "u1", Prompt: "hello"})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}

	if store.commitCalls != 0 {
		t.Errorf("commit must not run after generation failure, got %d calls", store.commitCalls)
	}
	if store.users["u1"].TokensLeft != 3 {
		t.Errorf("tokens must be untouched, got %d", store.users["u1"].TokensLeft)
	}
	if len(usage.events) != 0 {
		t.Errorf("no usage event expected, got %d", len(usage.events))
	}
	if got := rec.Snapshot().GenerationFailures; got != 1 {
		t.Errorf("expected 1 generation failure, got %d", got)
	}
}

func TestHandleTurn_SearchFailureContinues(t *testing.T) {
	store := newFakeStore(testUser("u1", 3))
	gen := &fakeGenerator{answer: "the answer"}
	search := &fakeSearcher{err: errors.New("search down")}
	rec := metrics.NewInMemory()
	svc := newTestService(store, search, gen, nil, rec)

	out, err := svc.HandleTurn(context.Background(), TurnInput{UserID: "u1", Prompt: "hello"})
	if err != nil {
		t.Fatalf("turn should succeed without search, got %v", err)
	}

	if out.Answer != "the answer" {
		t.Errorf("unexpected answer %q", out.Answer)
	}
	if len(out.Sources) != 0 {
		t.Errorf("expected no sources, got %d", len(out.Sources))
	}
	if out.TokensLeft != 2 {
		t.Errorf("expected 2 tokens left, got %d", out.TokensLeft)
	}
	if got := rec.Snapshot().SearchFailures; got != 1 {
		t.Errorf("expected 1 search failure, got %d", got)
	}
	// Prompt must not carry a search context block.
	if strings.Contains(gen.lastPrompt, "Search Context:") {
		t.Error("prompt should not contain search context after search failure")
	}
}

func TestHandleTurn_SourceFiltering(t *testing.T) {
	store := newFakeStore(testUser("u1", 3))
	gen := &fakeGenerator{answer: "ok"}
	search := &fakeSearcher{results: []model.SearchResult{
		{Title: "Good", Content: "c1", URL: "https://example.com/a"},
		{Title: "Relative", Content: "c2", URL: "/relative/path"},
		{Title: "", Content: "c3", URL: "http://example.com/b"},
		{Title: "NoURL", Content: "c4", URL: ""},
	}}
	svc := newTestService(store, search, gen, nil, nil)

	out, err := svc.HandleTurn(context.Background(), TurnInput{UserID: "u1", Prompt: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(out.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(out.Sources))
	}
	if out.TokensLeft != 2 {
		t.Errorf("expected 2 tokens left, got %d", out.TokensLeft)
	}
	if out.Sources[0].Title != "Good" || out.Sources[0].URL != "https://example.com/a" {
		t.Errorf("unexpected first source: %+v", out.Sources[0])
	}
	if out.Sources[1].Title != model.DefaultSourceTitle {
		t.Errorf("expected fallback title %q, got %q", model.DefaultSourceTitle, out.Sources[1].Title)
	}

	// All results, including filtered ones, still feed the prompt.
	if !strings.Contains(gen.lastPrompt, "Search Context:") {
		t.Error("prompt should carry the search context block")
	}
	if !strings.Contains(gen.lastPrompt, "Content: c2") {
		t.Error("filtered results should still appear in the prompt context")
	}
}

func TestHandleTurn_SourceCap(t *testing.T) {
	results := make([]model.SearchResult, 8)
	for i := range results {
		results[i] = model.SearchResult{
			Title:   "t",
			Content: "c",
			URL:     "https://example.com/" + strings.Repeat("x", i+1),
		}
	}

	store := newFakeStore(testUser("u1", 3))
	svc := newTestService(store, &fakeSearcher{results: results}, &fakeGenerator{answer: "ok"}, nil, nil)

	out, err := svc.HandleTurn(context.Background(), TurnInput{UserID: "u1", Prompt: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Sources) != maxSources {
		t.Errorf("expected %d sources, got %d", maxSources, len(out.Sources))
	}
}

func TestHandleTurn_Success(t *testing.T) {
	store := newFakeStore(testUser("u1", 3))
	gen := &fakeGenerator{answer: "here you go"}
	usage := &fakeUsage{}
	rec := metrics.NewInMemory()
	svc := newTestService(store, nil, gen, usage, rec)

	out, err := svc.HandleTurn(context.Background(), TurnInput{UserID: "u1", Prompt: "Hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Answer != "here you go" {
		t.Errorf("unexpected answer %q", out.Answer)
	}
	if out.TokensLeft != 2 {
		t.Errorf("expected 2 tokens left, got %d", out.TokensLeft)
	}
	if store.users["u1"].TokensLeft != 2 {
		t.Errorf("store should hold 2 tokens, got %d", store.users["u1"].TokensLeft)
	}

	if len(store.history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(store.history))
	}
	entry := store.history[0]
	if entry.Prompt != "Hello" {
		t.Errorf("history should store the raw prompt, got %q", entry.Prompt)
	}
	if entry.ID == "" {
		t.Error("history entry needs an ID")
	}

	if len(usage.events) != 1 {
		t.Fatalf("expected 1 usage event, got %d", len(usage.events))
	}
	event := usage.events[0]
	if event.UserID != "u1" || event.PromptChars != len("Hello") || event.TokensLeftAfter != 2 {
		t.Errorf("unexpected usage event: %+v", event)
	}

	snap := rec.Snapshot()
	if snap.TurnsCompleted != 1 {
		t.Errorf("expected 1 completed turn, got %d", snap.TurnsCompleted)
	}
	if snap.TurnDurationCount != 1 {
		t.Errorf("expected 1 duration observation, got %d", snap.TurnDurationCount)
	}
}

func TestHandleTurn_CommitQuotaRace(t *testing.T) {
	store := newFakeStore(testUser("u1", 1))
	store.commitErr = repository.ErrQuotaExhausted
	svc := newTestService(store, nil, &fakeGenerator{answer: "ok"}, nil, nil)

	_, err := svc.HandleTurn(context.Background(), TurnInput{UserID: "u1", Prompt: "hello"})
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted from commit race, got %v", err)
	}
}

func TestHandleTurn_PersistenceFailure(t *testing.T) {
	store := newFakeStore(testUser("u1", 3))
	store.commitErr = errors.New("connection reset")
	usage := &fakeUsage{}
	svc := newTestService(store, nil, &fakeGenerator{answer: "ok"}, usage, nil)

	_, err := svc.HandleTurn(context.Background(), TurnInput{UserID: "u1", Prompt: "hello"})
	if !errors.Is(err, ErrPersistenceFailed) {
		t.Fatalf("expected ErrPersistenceFailed, got %v", err)
	}
	if len(usage.events) != 0 {
		t.Errorf("no usage event expected after persistence failure, got %d", len(usage.events))
	}
}

func TestHandleTurn_QuotaSequence(t *testing.T) {
	store := newFakeStore(testUser("u1", 3))
	svc := newTestService(store, nil, &fakeGenerator{answer: "ok"}, nil, nil)

	for want := 2; want >= 0; want-- {
		out, err := svc.HandleTurn(context.Background(), TurnInput{UserID: "u1", Prompt: "Hello"})
		if err != nil {
			t.Fatalf("turn failed at %d tokens left: %v", want, err)
		}
		if out.TokensLeft != want {
			t.Fatalf("expected %d tokens left, got %d", want, out.TokensLeft)
		}
	}

	_, err := svc.HandleTurn(context.Background(), TurnInput{UserID: "u1", Prompt: "Hello"})
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted after quota drained, got %v", err)
	}
	if len(store.history) != 3 {
		t.Errorf("expected 3 history entries, got %d", len(store.history))
	}
}

func TestHistory(t *testing.T) {
	user := testUser("u1", 5)
	store := newFakeStore(user)
	svc := newTestService(store, nil, &fakeGenerator{answer: "ok"}, nil, nil)

	for _, prompt := range []string{"first", "second", "third"} {
		if _, err := svc.HandleTurn(context.Background(), TurnInput{UserID: "u1", Prompt: prompt}); err != nil {
			t.Fatalf("turn %q failed: %v", prompt, err)
		}
	}

	entries, err := svc.History(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	// Newest first.
	if entries[0].Prompt != "third" || entries[2].Prompt != "first" {
		t.Errorf("expected newest-first ordering, got %q .. %q", entries[0].Prompt, entries[2].Prompt)
	}
}

func TestHistory_UserNotFound(t *testing.T) {
	svc := newTestService(newFakeStore(), nil, &fakeGenerator{}, nil, nil)

	_, err := svc.History(context.Background(), "ghost")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestComposePrompt_WithoutResults(t *testing.T) {
	got := composePrompt("What is Go?", nil)

	if !strings.HasPrefix(got, systemInstruction) {
		t.Error("prompt must start with the system instruction")
	}
	if !strings.Contains(got, "\n\n---\n\nUser: What is Go?") {
		t.Error("prompt must carry the bare user query after the separator")
	}
	if !strings.HasSuffix(got, "Genie (reply in Markdown with emojis where appropriate):") {
		t.Error("prompt must end with the reply cue")
	}
	if strings.Contains(got, "Search Context:") {
		t.Error("no search context expected without results")
	}
}

func TestComposePrompt_WithResults(t *testing.T) {
	results := []model.SearchResult{
		{Title: "A", Content: "alpha", URL: "https://a.example"},
		{Title: "B", Content: "beta", URL: "https://b.example"},
	}

	got := composePrompt("What is Go?", results)

	if !strings.Contains(got, "Connect the user's query with the following search results") {
		t.Error("prompt must carry the search preamble")
	}
	if !strings.Contains(got, "Title: A\nContent: alpha\nURL: https://a.example") {
		t.Error("prompt must carry the first result stanza")
	}
	if !strings.Contains(got, "User Query:\nWhat is Go?") {
		t.Error("prompt must carry the user query block")
	}
}
