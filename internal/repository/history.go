package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/geniechat/genie/internal/model"
)

// ErrQuotaExhausted is returned by CommitTurn when the conditional
// decrement matches no row (tokens_left already at zero).
var ErrQuotaExhausted = errors.New("quota exhausted")

// CommitTurn atomically decrements the user's quota, appends a history
// entry, and trims the history to the newest MaxHistoryEntries rows.
// The decrement is conditional on tokens_left > 0, so concurrent turns
// for the same user can never drive the counter negative or lose an
// update. Returns the quota value after the decrement.
func (r *Repository) CommitTurn(ctx context.Context, entry *model.HistoryEntry) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin turn transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var tokensLeft int
	err = tx.QueryRow(ctx, `
		UPDATE users
		SET tokens_left = tokens_left - 1
		WHERE id = $1 AND tokens_left > 0
		RETURNING tokens_left
	`, entry.UserID).Scan(&tokensLeft)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrQuotaExhausted
		}
		return 0, fmt.Errorf("decrement quota: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_history (id, user_id, prompt, created_at)
		VALUES ($1, $2, $3, $4)
	`, entry.ID, entry.UserID, entry.Prompt, entry.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("append history entry: %w", err)
	}

	// FIFO truncation: drop everything older than the newest cap.
	_, err = tx.Exec(ctx, `
		DELETE FROM chat_history
		WHERE user_id = $1
		AND id NOT IN (
			SELECT id FROM chat_history
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		)
	`, entry.UserID, model.MaxHistoryEntries)
	if err != nil {
		return 0, fmt.Errorf("trim history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit turn transaction: %w", err)
	}

	return tokensLeft, nil
}

// ListHistory returns the user's stored prompts, newest first.
func (r *Repository) ListHistory(ctx context.Context, userID string) ([]*model.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, prompt, created_at
		FROM chat_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	entries := make([]*model.HistoryEntry, 0, model.MaxHistoryEntries)
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Prompt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}

	return entries, nil
}
