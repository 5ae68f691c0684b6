package msgsync

import "robot-market/internal/models"

// Session is the signed-in identity a Store acts for. It is created when a
// session is resolved and discarded on sign-out together with its Store.
type Session struct {
	UserID      string
	Email       string
	AccountType models.AccountType
	Token       string
}

// Authenticated reports whether the session carries a user.
func (s Session) Authenticated() bool {
	return s.UserID != ""
}
