package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/geniechat/genie/internal/model"
)

// BulkInsertUsage inserts a batch of usage events.
// Called by the usage worker; individual event loss is tolerated upstream,
// so there is no conflict handling beyond the primary key.
func (r *Repository) BulkInsertUsage(ctx context.Context, events []*model.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO usage_events (id, user_id, prompt_chars, source_count, tokens_left_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(query, e.ID, e.UserID, e.PromptChars, e.SourceCount, e.TokensLeftAfter, e.CreatedAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert usage event: %w", err)
		}
	}

	return nil
}
