package model

// AuthContext holds the identity resolved from a session token.
// It is injected into the request context by the auth middleware.
type AuthContext struct {
	UserID string
	Email  string
}
