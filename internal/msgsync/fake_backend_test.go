package msgsync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"robot-market/internal/models"
)

var baseTime = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

type fakeSub struct {
	events chan models.ChangeEvent
	once   sync.Once
	closes int
	mu     sync.Mutex

	// when set, Close signals closing and blocks until release is closed
	closing chan struct{}
	release chan struct{}
}

func (s *fakeSub) Events() <-chan models.ChangeEvent { return s.events }

func (s *fakeSub) Close() error {
	s.mu.Lock()
	s.closes++
	first := s.closes == 1
	s.mu.Unlock()
	if first && s.release != nil {
		close(s.closing)
		<-s.release
	}
	s.once.Do(func() { close(s.events) })
	return nil
}

func (s *fakeSub) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// fakeBackend is an in-memory Backend scoped to one user.
type fakeBackend struct {
	mu            sync.Mutex
	userID        string
	seq           int
	conversations []models.Conversation
	profiles      map[string]models.Profile
	messages      map[string][]models.ConversationMessage
	subs          map[string][]*fakeSub

	listErr     error
	insertErr   map[string]error
	findErr     error
	hideOnFind  int
	echoInserts bool
	insertGate  chan struct{}
	calls       map[string]int
}

func newFakeBackend(userID string) *fakeBackend {
	return &fakeBackend{
		userID:    userID,
		profiles:  make(map[string]models.Profile),
		messages:  make(map[string][]models.ConversationMessage),
		subs:      make(map[string][]*fakeSub),
		insertErr: make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeBackend) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) nextTime() time.Time {
	f.seq++
	return baseTime.Add(time.Duration(f.seq) * time.Minute)
}

func (f *fakeBackend) addConversation(id, buyerID, sellerID, robotID string) models.Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	at := f.nextTime()
	conv := models.Conversation{ID: id, BuyerID: buyerID, SellerID: sellerID, RobotID: robotID, CreatedAt: at, UpdatedAt: at}
	f.conversations = append(f.conversations, conv)
	return conv
}

func (f *fakeBackend) addMessage(conversationID, senderID, content string) models.ConversationMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addMessageLocked(conversationID, senderID, content)
}

func (f *fakeBackend) addMessageLocked(conversationID, senderID, content string) models.ConversationMessage {
	at := f.nextTime()
	msg := models.ConversationMessage{
		ID:             fmt.Sprintf("m-%d", f.seq),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      at,
	}
	f.messages[conversationID] = append(f.messages[conversationID], msg)
	for i := range f.conversations {
		if f.conversations[i].ID == conversationID {
			f.conversations[i].UpdatedAt = at
		}
	}
	return msg
}

func (f *fakeBackend) emit(topic string, ev models.ChangeEvent) {
	f.mu.Lock()
	subs := append([]*fakeSub(nil), f.subs[topic]...)
	f.mu.Unlock()
	for _, sub := range subs {
		sub.events <- ev
	}
}

func (f *fakeBackend) subscription(topic string) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := f.subs[topic]
	if len(subs) == 0 {
		return nil
	}
	return subs[len(subs)-1]
}

func (f *fakeBackend) ListConversationRows(ctx context.Context) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListConversationRows"]++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []models.Conversation{}
	for _, conv := range f.conversations {
		if conv.HasParticipant(f.userID) {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (f *fakeBackend) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetProfile"]++
	profile, ok := f.profiles[userID]
	if !ok {
		return models.Profile{}, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	return profile, nil
}

func (f *fakeBackend) LatestMessage(ctx context.Context, conversationID string) (models.ConversationMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[conversationID]
	if len(msgs) == 0 {
		return models.ConversationMessage{}, ErrNotFound
	}
	return msgs[len(msgs)-1], nil
}

func (f *fakeBackend) ListMessageRows(ctx context.Context, conversationID string) ([]models.ConversationMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListMessageRows"]++
	return append([]models.ConversationMessage(nil), f.messages[conversationID]...), nil
}

func (f *fakeBackend) InsertMessage(ctx context.Context, conversationID, senderID, content string) (models.ConversationMessage, error) {
	f.mu.Lock()
	f.calls["InsertMessage"]++
	if err := f.insertErr[content]; err != nil {
		gate := f.insertGate
		f.mu.Unlock()
		if gate != nil {
			<-gate
		}
		return models.ConversationMessage{}, err
	}
	msg := f.addMessageLocked(conversationID, senderID, content)
	echo := f.echoInserts
	gate := f.insertGate
	f.mu.Unlock()

	if echo {
		m := msg
		f.emit(models.MessagesTopic(conversationID), models.ChangeEvent{
			Type: models.ChangeInsert, Table: models.TableConversationMessages,
			Topic: models.MessagesTopic(conversationID), Message: &m, CommitTimestamp: m.CreatedAt,
		})
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.ConversationMessage{}, ctx.Err()
		}
	}
	return msg, nil
}

func (f *fakeBackend) FindConversation(ctx context.Context, buyerID, sellerID, robotID string) (models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["FindConversation"]++
	if f.findErr != nil {
		return models.Conversation{}, f.findErr
	}
	if f.hideOnFind > 0 {
		f.hideOnFind--
		return models.Conversation{}, ErrNotFound
	}
	for _, conv := range f.conversations {
		if conv.BuyerID == buyerID && conv.SellerID == sellerID && conv.RobotID == robotID {
			return conv, nil
		}
	}
	return models.Conversation{}, ErrNotFound
}

func (f *fakeBackend) CreateConversation(ctx context.Context, buyerID, sellerID, robotID string) (models.Conversation, error) {
	f.mu.Lock()
	f.calls["CreateConversation"]++
	for _, conv := range f.conversations {
		if conv.BuyerID == buyerID && conv.SellerID == sellerID && conv.RobotID == robotID {
			f.mu.Unlock()
			return conv, ErrConflict
		}
	}
	id := fmt.Sprintf("c-%d", len(f.conversations)+1)
	f.mu.Unlock()
	return f.addConversation(id, buyerID, sellerID, robotID), nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSub{events: make(chan models.ChangeEvent, 16)}
	f.subs[topic] = append(f.subs[topic], sub)
	return sub, nil
}

func newTestStore(backend Backend, userID string) *Store {
	return NewStore(backend, Session{UserID: userID},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return baseTime.Add(24 * time.Hour) }),
	)
}

// waitForChange drains Updates until match accepts a Change.
func waitForChange(t *testing.T, s *Store, match func(Change) bool) Change {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case change, ok := <-s.Updates():
			if !ok {
				t.Fatal("updates channel closed")
			}
			if match(change) {
				return change
			}
		case <-timeout:
			t.Fatal("timed out waiting for change")
		}
	}
}

func drainUpdates(s *Store) {
	for {
		select {
		case <-s.Updates():
		default:
			return
		}
	}
}
