package models

import "time"

// AccountType is carried as user metadata; it is not a separate authorization table.
type AccountType string

const (
	AccountBuyer  AccountType = "buyer"
	AccountSeller AccountType = "seller"
)

// Valid reports whether a is a known account type.
func (a AccountType) Valid() bool {
	return a == AccountBuyer || a == AccountSeller
}

// User is an authenticated identity.
type User struct {
	ID           string      `db:"id" json:"id"`
	Email        string      `db:"email" json:"email"`
	PasswordHash string      `db:"password_hash" json:"-"`
	AccountType  AccountType `db:"account_type" json:"account_type"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}

// Profile is the public identity of a user.
type Profile struct {
	ID          string      `db:"id" json:"id"`
	Username    string      `db:"username" json:"username"`
	AvatarURL   string      `db:"avatar_url" json:"avatar_url"`
	AccountType AccountType `db:"account_type" json:"account_type"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// Session binds an opaque token to a user until it expires.
type Session struct {
	Token     string    `db:"token" json:"token"`
	UserID    string    `db:"user_id" json:"user_id"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
