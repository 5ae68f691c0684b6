package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"robot-market/internal/models"
	"robot-market/internal/repositories"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("invalid registration input")
	ErrUnauthenticated    = errors.New("session is missing or expired")
)

const minPasswordLength = 6

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenGenerator creates session tokens.
type TokenGenerator interface {
	NewToken() (string, error)
}

// Principal is the identity attached to an authenticated request.
type Principal struct {
	UserID      string             `json:"user_id"`
	Email       string             `json:"email"`
	AccountType models.AccountType `json:"account_type"`
}

// IsSeller reports whether the principal may manage listings.
func (p Principal) IsSeller() bool {
	return p.AccountType == models.AccountSeller
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Email       string             `json:"email"`
	Password    string             `json:"password"`
	Username    string             `json:"username"`
	AccountType models.AccountType `json:"account_type"`
}

// Result is returned by Register and Login.
type Result struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      Principal `json:"user"`
}

// Service issues and validates sessions.
type Service struct {
	users  repositories.UserRepository
	hasher Hasher
	tokens TokenGenerator
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewService builds an auth Service.
func NewService(users repositories.UserRepository, hasher Hasher, tokens TokenGenerator, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, hasher: hasher, tokens: tokens, ttl: ttl, now: time.Now, logger: logger}
}

// Register creates a user with a profile and opens a session for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Result, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	if in.AccountType == "" {
		in.AccountType = models.AccountBuyer
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return Result{}, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLength {
		return Result{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if in.Username == "" {
		in.Username = strings.SplitN(in.Email, "@", 2)[0]
	}
	if !in.AccountType.Valid() {
		return Result{}, fmt.Errorf("%w: account type", ErrInvalidInput)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Result{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.CreateUser(ctx, in.Email, hash, in.Username, in.AccountType)
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID, "account_type", user.AccountType)
	return s.openSession(ctx, user)
}

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (Result, error) {
	user, err := s.users.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return Result{}, ErrInvalidCredentials
		}
		return Result{}, err
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return Result{}, ErrInvalidCredentials
	}
	return s.openSession(ctx, user)
}

// Logout revokes the session token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.users.DeleteSession(ctx, token)
}

// Authenticate resolves a session token to its principal.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrUnauthenticated
	}
	session, err := s.users.SessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, err
	}
	if !session.ExpiresAt.After(s.now()) {
		return Principal{}, ErrUnauthenticated
	}
	user, err := s.users.UserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, err
	}
	return principalOf(user), nil
}

func (s *Service) openSession(ctx context.Context, user models.User) (Result, error) {
	token, err := s.tokens.NewToken()
	if err != nil {
		return Result{}, err
	}
	session, err := s.users.CreateSession(ctx, token, user.ID, s.now().Add(s.ttl))
	if err != nil {
		return Result{}, fmt.Errorf("create session: %w", err)
	}
	return Result{Token: session.Token, ExpiresAt: session.ExpiresAt, User: principalOf(user)}, nil
}

func principalOf(user models.User) Principal {
	return Principal{UserID: user.ID, Email: user.Email, AccountType: user.AccountType}
}
