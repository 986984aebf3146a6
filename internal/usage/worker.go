package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geniechat/genie/internal/metrics"
	"github.com/geniechat/genie/internal/model"
)

const (
	// ConsumerGroup is the Redis consumer group name.
	ConsumerGroup = "usage_workers"

	// DefaultBatchSize is the max events per batch.
	DefaultBatchSize = 200

	// DefaultBlockTimeout is how long to block waiting for messages.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultClaimInterval is how often to scan for pending messages.
	DefaultClaimInterval = 10 * time.Second

	// DefaultClaimIdle is the idle time before reclaiming pending messages
	// left behind by a crashed or restarted consumer.
	DefaultClaimIdle = 30 * time.Second
)

// Repository defines the interface for usage event persistence.
type Repository interface {
	BulkInsertUsage(ctx context.Context, events []*model.UsageEvent) error
}

// Worker drains usage events from the Redis stream into Postgres.
type Worker struct {
	redis         *redis.Client
	repo          Repository
	logger        *slog.Logger
	metrics       metrics.Recorder
	consumerID    string
	batchSize     int
	blockTimeout  time.Duration
	claimInterval time.Duration
	claimIdle     time.Duration
	claimStartID  string
	lastClaim     time.Time

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewWorker creates a new usage worker.
func NewWorker(client *redis.Client, repo Repository, logger *slog.Logger, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	consumerID := newConsumerID()
	return &Worker{
		redis:         client,
		repo:          repo,
		logger:        logger.With("component", "usage.worker", "consumer_id", consumerID),
		metrics:       recorder,
		consumerID:    consumerID,
		batchSize:     DefaultBatchSize,
		blockTimeout:  DefaultBlockTimeout,
		claimInterval: DefaultClaimInterval,
		claimIdle:     DefaultClaimIdle,
		claimStartID:  "0-0",
	}
}

// Run starts the worker loop. Blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	if err := w.ensureConsumerGroup(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("usage worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("usage worker stopping")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		default:
			if err := w.processOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Shutdown gracefully stops the worker, completing any in-flight batch.
// It implements server.ShutdownFunc for integration with graceful shutdown.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if done != nil {
		select {
		case <-done:
			w.logger.Info("usage worker shutdown complete")
			return nil
		case <-ctx.Done():
			w.logger.Warn("usage worker shutdown timed out")
			return ctx.Err()
		}
	}
	return nil
}

// ensureConsumerGroup creates the consumer group if it doesn't exist.
func (w *Worker) ensureConsumerGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// processOnce processes a single batch. Reclaimed pending messages from
// dead consumers take priority over new ones; without the claim pass a
// failed batch would sit in the pending list forever, since the group is
// otherwise only ever read with ">".
func (w *Worker) processOnce(ctx context.Context) error {
	messages, err := w.maybeClaimPending(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending messages", "error", err)
	}

	if len(messages) == 0 {
		messages, err = w.readBatch(ctx)
		if err != nil {
			return err
		}
	}

	var events []*model.UsageEvent
	var messageIDs []string
	for _, msg := range messages {
		messageIDs = append(messageIDs, msg.ID)
		event, ok := w.parseMessage(msg)
		if !ok {
			continue // Malformed, ACK anyway below
		}
		events = append(events, event)
	}

	if len(messageIDs) == 0 {
		return nil
	}

	if len(events) > 0 {
		w.metrics.ObserveUsageBatchSize(len(events))
		if err := w.repo.BulkInsertUsage(ctx, events); err != nil {
			w.metrics.IncUsageEventProcessed("failed")
			// Do not ACK so the messages can be retried later.
			return fmt.Errorf("bulk insert: %w", err)
		}
		for range events {
			w.metrics.IncUsageEventProcessed("success")
		}
	}

	return w.redis.XAck(ctx, StreamKey, ConsumerGroup, messageIDs...).Err()
}

// readBatch reads new messages for this consumer, blocking up to the
// configured timeout.
func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Timed out with no messages
		}
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	var messages []redis.XMessage
	for _, stream := range streams {
		messages = append(messages, stream.Messages...)
	}
	return messages, nil
}

// maybeClaimPending scans the pending list for messages idle past the
// claim threshold and takes them over. Consumer IDs are unique per
// process, so entries stranded by a restarted worker are only ever
// recovered here.
func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if w.claimInterval <= 0 || w.claimIdle <= 0 {
		return nil, nil
	}
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.claimInterval {
		return nil, nil
	}

	w.lastClaim = time.Now()
	messages, start, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.claimIdle,
		Start:    w.claimStartID,
		Count:    int64(w.batchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if start != "" {
		w.claimStartID = start
	}
	return messages, nil
}

// parseMessage decodes a stream message into a usage event.
func (w *Worker) parseMessage(msg redis.XMessage) (*model.UsageEvent, bool) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		w.logger.Warn("usage message missing payload", "stream_id", msg.ID)
		return nil, false
	}

	var payload eventPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		w.logger.Warn("malformed usage payload", "stream_id", msg.ID, "error", err)
		return nil, false
	}

	return &model.UsageEvent{
		ID:              payload.ID,
		UserID:          payload.UserID,
		PromptChars:     payload.PromptChars,
		SourceCount:     payload.SourceCount,
		TokensLeftAfter: payload.TokensLeftAfter,
		CreatedAt:       time.UnixMilli(payload.CreatedAt).UTC(),
	}, true
}

// newConsumerID creates a stable-ish consumer ID for Redis consumer groups.
func newConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
}
