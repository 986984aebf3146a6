package model

import "time"

// MaxHistoryEntries is the per-user cap on stored prompts.
// The commit-turn transaction trims anything older than the newest 50.
const MaxHistoryEntries = 50

// HistoryEntry is a stored record of a past prompt.
// Answers are not persisted; the history is a prompt log only.
type HistoryEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}
