// Package model defines domain entities for the application.
package model

import "time"

// User represents a registered chat user.
// TokensLeft is the remaining chat-turn quota; it is only ever decremented
// by the chat pipeline. Top-ups are an operator concern.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	TokensLeft   int       `json:"tokens_left"`
	CreatedAt    time.Time `json:"created_at"`
}
