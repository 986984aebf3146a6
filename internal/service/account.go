package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/geniechat/genie/internal/auth"
	"github.com/geniechat/genie/internal/metrics"
	"github.com/geniechat/genie/internal/model"
	"github.com/geniechat/genie/internal/repository"
)

// Account service errors.
var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password too short")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 8

// UserStore is the persistence surface the account service depends on.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// AccountService handles registration and login.
type AccountService struct {
	store         UserStore
	metrics       metrics.Recorder
	sessionSecret string
	sessionTTL    time.Duration
	initialTokens int
}

// NewAccountService creates an AccountService.
func NewAccountService(store UserStore, recorder metrics.Recorder, sessionSecret string, sessionTTL time.Duration, initialTokens int) *AccountService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AccountService{
		store:         store,
		metrics:       recorder,
		sessionSecret: sessionSecret,
		sessionTTL:    sessionTTL,
		initialTokens: initialTokens,
	}
}

// Register creates a new user with the configured starting quota.
func (s *AccountService) Register(ctx context.Context, email, password string) (*model.User, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		TokensLeft:   s.initialTokens,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.metrics.IncUserRegistered()

	return user, nil
}

// Login verifies credentials and issues a session token.
// Unknown email and wrong password return the same error so accounts
// cannot be enumerated.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("load user: %w", err)
	}

	match, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", nil, ErrInvalidCredentials
	}

	token, err := auth.SignToken(s.sessionSecret, user.ID, s.sessionTTL)
	if err != nil {
		return "", nil, fmt.Errorf("sign session token: %w", err)
	}

	return token, user, nil
}

// Profile returns the user record for an authenticated session.
func (s *AccountService) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}
