package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"robot-market/internal/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailTaken      = errors.New("email already registered")
	ErrProfileNotFound = errors.New("profile not found")
	ErrSessionNotFound = errors.New("session not found")
)

// UserRepository stores identities, public profiles and sessions.
type UserRepository interface {
	CreateUser(ctx context.Context, email, passwordHash, username string, accountType models.AccountType) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, userID string) (models.User, error)
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	CreateSession(ctx context.Context, token, userID string, expiresAt time.Time) (models.Session, error)
	SessionByToken(ctx context.Context, token string) (models.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser inserts the user and its profile atomically.
func (r *UserRepo) CreateUser(ctx context.Context, email, passwordHash, username string, accountType models.AccountType) (models.User, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.User{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var user models.User
	if err = tx.GetContext(ctx, &user, `INSERT INTO users (email, password_hash, account_type) VALUES ($1, $2, $3)
        RETURNING id, email, password_hash, account_type, created_at`, email, passwordHash, accountType); err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO profiles (id, username, account_type) VALUES ($1, $2, $3)`,
		user.ID, username, accountType); err != nil {
		return models.User{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// UserByEmail fetches a user by login email.
func (r *UserRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, email, password_hash, account_type, created_at FROM users WHERE email=$1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// UserByID fetches a user by id.
func (r *UserRepo) UserByID(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, email, password_hash, account_type, created_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetProfile fetches the public profile of a user.
func (r *UserRepo) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	var profile models.Profile
	err := r.db.GetContext(ctx, &profile, `SELECT id, username, avatar_url, account_type, created_at, updated_at
        FROM profiles WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrProfileNotFound
	}
	return profile, err
}

// CreateSession stores a session token.
func (r *UserRepo) CreateSession(ctx context.Context, token, userID string, expiresAt time.Time) (models.Session, error) {
	var session models.Session
	err := r.db.GetContext(ctx, &session, `INSERT INTO sessions (token, user_id, expires_at) VALUES ($1, $2, $3)
        RETURNING token, user_id, expires_at, created_at`, token, userID, expiresAt)
	return session, err
}

// SessionByToken returns an unexpired session.
func (r *UserRepo) SessionByToken(ctx context.Context, token string) (models.Session, error) {
	var session models.Session
	err := r.db.GetContext(ctx, &session, `SELECT token, user_id, expires_at, created_at FROM sessions
        WHERE token=$1 AND expires_at > NOW()`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrSessionNotFound
	}
	return session, err
}

// DeleteSession removes a session; deleting an unknown token is not an error.
func (r *UserRepo) DeleteSession(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token=$1`, token)
	return err
}
