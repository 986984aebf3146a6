package usage

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newParseWorker(t *testing.T) *Worker {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWorker(nil, nil, logger, nil)
}

func TestParseMessage(t *testing.T) {
	w := newParseWorker(t)

	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	raw, err := json.Marshal(eventPayload{
		ID:              "evt-1",
		UserID:          "u1",
		PromptChars:     42,
		SourceCount:     3,
		TokensLeftAfter: 7,
		CreatedAt:       created.UnixMilli(),
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	event, ok := w.parseMessage(redis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"payload": string(raw)},
	})
	if !ok {
		t.Fatal("expected message to parse")
	}

	if event.ID != "evt-1" || event.UserID != "u1" {
		t.Errorf("unexpected identity fields: %+v", event)
	}
	if event.PromptChars != 42 || event.SourceCount != 3 || event.TokensLeftAfter != 7 {
		t.Errorf("unexpected counters: %+v", event)
	}
	if !event.CreatedAt.Equal(created) {
		t.Errorf("expected created at %s, got %s", created, event.CreatedAt)
	}
}

func TestNewWorker_ClaimDefaults(t *testing.T) {
	w := newParseWorker(t)

	if w.claimInterval != DefaultClaimInterval {
		t.Errorf("expected claim interval %s, got %s", DefaultClaimInterval, w.claimInterval)
	}
	if w.claimIdle != DefaultClaimIdle {
		t.Errorf("expected claim idle %s, got %s", DefaultClaimIdle, w.claimIdle)
	}
	if w.claimStartID != "0-0" {
		t.Errorf("expected claim scan to start at 0-0, got %q", w.claimStartID)
	}
}

func TestMaybeClaimPending_Skipped(t *testing.T) {
	// Both cases must return before touching Redis; the worker holds a
	// nil client, so a regression here panics.
	t.Run("disabled", func(t *testing.T) {
		w := newParseWorker(t)
		w.claimInterval = 0

		messages, err := w.maybeClaimPending(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if messages != nil {
			t.Errorf("expected no messages, got %d", len(messages))
		}
	})

	t.Run("throttled", func(t *testing.T) {
		w := newParseWorker(t)
		w.lastClaim = time.Now()

		messages, err := w.maybeClaimPending(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if messages != nil {
			t.Errorf("expected no messages, got %d", len(messages))
		}
	})
}

func TestRun_CancelledContextReturnsNil(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	t.Cleanup(func() { client.Close() })
	w := NewWorker(client, nil, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.Run(ctx); err != nil {
		t.Errorf("expected nil on cancelled context, got %v", err)
	}
}

func TestParseMessage_Malformed(t *testing.T) {
	w := newParseWorker(t)

	tests := []struct {
		name   string
		values map[string]interface{}
	}{
		{"missing_payload", map[string]interface{}{}},
		{"payload_not_string", map[string]interface{}{"payload": 42}},
		{"payload_not_json", map[string]interface{}{"payload": "{oops"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, ok := w.parseMessage(redis.XMessage{ID: "1-0", Values: test.values}); ok {
				t.Error("expected parse to fail")
			}
		})
	}
}
