package msgsync

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Sender says who wrote a message relative to the viewing user.
type Sender string

const (
	SenderSelf  Sender = "self"
	SenderOther Sender = "other"
)

// Classify resolves a sender id against the current user. It is never stored.
func Classify(senderID, currentUserID string) Sender {
	if senderID != "" && senderID == currentUserID {
		return SenderSelf
	}
	return SenderOther
}

// TempIDPrefix marks ids generated locally for messages that are not persisted yet.
// Server ids are UUIDs and never carry it.
const TempIDPrefix = "temp-"

// IsTempID reports whether id belongs to a pending optimistic message.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Message is a timeline entry.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Sender         Sender
	Content        string
	CreatedAt      time.Time
	Pending        bool
}

const (
	UnknownUserName     = "Unknown User"
	UnknownUserInitials = "U"
)

// Counterparty is the participant of a conversation that is not the viewer.
type Counterparty struct {
	ID        string
	Name      string
	AvatarURL string
	Initials  string
}

func unknownCounterparty(id string) Counterparty {
	return Counterparty{ID: id, Name: UnknownUserName, Initials: UnknownUserInitials}
}

func counterpartyFromProfile(id, username, avatarURL string) Counterparty {
	if strings.TrimSpace(username) == "" {
		c := unknownCounterparty(id)
		c.AvatarURL = avatarURL
		return c
	}
	first, _ := utf8.DecodeRuneInString(username)
	return Counterparty{
		ID:        id,
		Name:      username,
		AvatarURL: avatarURL,
		Initials:  string(unicode.ToUpper(first)),
	}
}

// Conversation is a directory entry.
type Conversation struct {
	ID           string
	RobotID      string
	BuyerID      string
	SellerID     string
	Counterparty Counterparty
	Preview      string
	LastActivity time.Time
}

// Scope says which cache a Change touched.
type Scope uint8

const (
	ScopeDirectory Scope = 1 << iota
	ScopeTimeline
)

// Has reports whether s includes other.
func (s Scope) Has(other Scope) bool {
	return s&other != 0
}

// Change is published on Store.Updates after a cache mutation. An empty
// ConversationID with ScopeDirectory means the whole directory was replaced.
type Change struct {
	ConversationID string
	Scope          Scope
}
