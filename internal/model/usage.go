package model

import "time"

// UsageEvent records one completed chat turn for offline analysis.
// Events are captured fire-and-forget; losing some under load is acceptable.
type UsageEvent struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	PromptChars     int       `json:"prompt_chars"`
	SourceCount     int       `json:"source_count"`
	TokensLeftAfter int       `json:"tokens_left_after"`
	CreatedAt       time.Time `json:"created_at"`
}
