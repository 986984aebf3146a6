package dto

// RegisterRequest is the body of POST /api/v1/auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResponse is returned after successful registration.
type RegisterResponse struct {
	UserID     string `json:"user_id"`
	TokensLeft int    `json:"tokens_left"`
}

// LoginRequest is the body of POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued session token.
type LoginResponse struct {
	Token      string `json:"token"`
	TokensLeft int    `json:"tokens_left"`
}

// MeResponse is the body of GET /api/v1/me.
type MeResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	TokensLeft int    `json:"tokens_left"`
}
