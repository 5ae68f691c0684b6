package msgsync

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultUpdatesBuffer      = 64
	defaultResolveConcurrency = 8
)

// Store owns the conversation directory and the message timelines of one session.
// All cache mutations go through its methods; observers read Updates and then
// take snapshots with Conversations and Messages.
type Store struct {
	backend     Backend
	session     Session
	logger      *slog.Logger
	now         func() time.Time
	newTempID   func() string
	concurrency int

	mu        sync.Mutex
	directory map[string]Conversation
	timelines map[string][]Message
	watches   map[*Watch]struct{}
	updates   chan Change
	closed    bool

	// in-flight sends per conversation and the directory entry from before the first of them
	inflight  map[string]int
	baselines map[string]Conversation
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithUpdatesBuffer(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.updates = make(chan Change, n)
		}
	}
}

// WithResolveConcurrency bounds the parallel profile and preview lookups of ListConversations.
func WithResolveConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewStore builds a Store for session on top of backend.
func NewStore(backend Backend, session Session, opts ...Option) *Store {
	s := &Store{
		backend:     backend,
		session:     session,
		logger:      slog.Default(),
		now:         time.Now,
		newTempID:   func() string { return TempIDPrefix + uuid.NewString() },
		concurrency: defaultResolveConcurrency,
		directory:   make(map[string]Conversation),
		timelines:   make(map[string][]Message),
		watches:     make(map[*Watch]struct{}),
		inflight:    make(map[string]int),
		baselines:   make(map[string]Conversation),
		updates:     make(chan Change, defaultUpdatesBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Session returns the identity the store acts for.
func (s *Store) Session() Session {
	return s.session
}

// Updates delivers one Change per cache mutation. The channel is closed by Close.
// When the reader falls behind changes are dropped; a reader that sees any
// Change should re-read the snapshot it cares about.
func (s *Store) Updates() <-chan Change {
	return s.updates
}

// Conversations returns the directory ordered by last activity, newest first.
func (s *Store) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conversation, 0, len(s.directory))
	for _, conv := range s.directory {
		out = append(out, conv)
	}
	sortDirectory(out)
	return out
}

// Conversation returns one directory entry.
func (s *Store) Conversation(id string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.directory[id]
	return conv, ok
}

// Messages returns the cached timeline of a conversation with senders
// classified against the session user.
func (s *Store) Messages(conversationID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classifiedLocked(conversationID)
}

// ActiveWatches returns the number of open realtime subscriptions.
func (s *Store) ActiveWatches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watches)
}

// Close releases every open subscription and closes Updates. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	watches := make([]*Watch, 0, len(s.watches))
	for w := range s.watches {
		watches = append(watches, w)
	}
	s.mu.Unlock()

	var firstErr error
	for _, w := range watches {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.mu.Lock()
	close(s.updates)
	s.mu.Unlock()
	return firstErr
}

func (s *Store) classifiedLocked(conversationID string) []Message {
	timeline := s.timelines[conversationID]
	out := make([]Message, len(timeline))
	for i, msg := range timeline {
		msg.Sender = Classify(msg.SenderID, s.session.UserID)
		out[i] = msg
	}
	return out
}

// notifyLocked must be called with s.mu held.
func (s *Store) notifyLocked(change Change) {
	if s.closed {
		return
	}
	select {
	case s.updates <- change:
	default:
		s.logger.Debug("updates channel full, dropping change", "conversation_id", change.ConversationID)
	}
}

func sortDirectory(entries []Conversation) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].LastActivity.Equal(entries[j].LastActivity) {
			return entries[i].LastActivity.After(entries[j].LastActivity)
		}
		return entries[i].ID < entries[j].ID
	})
}

// sortTimeline orders persisted messages by creation time and keeps pending
// messages after them in submission order.
func sortTimeline(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Pending != msgs[j].Pending {
			return !msgs[i].Pending
		}
		if msgs[i].Pending {
			return false
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

func indexOf(msgs []Message, id string) int {
	for i, msg := range msgs {
		if msg.ID == id {
			return i
		}
	}
	return -1
}
