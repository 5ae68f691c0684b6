package msgsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"robot-market/internal/models"
	"robot-market/internal/observability"
)

// SendState is the phase of one optimistic send.
type SendState int

const (
	StateIdle SendState = iota
	StateOptimistic
	StatePersisting
	StateCommitted
	StateRolledBack
)

func (s SendState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOptimistic:
		return "optimistic"
	case StatePersisting:
		return "persisting"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	}
	return fmt.Sprintf("SendState(%d)", int(s))
}

// SendResult is the outcome of an asynchronous send.
type SendResult struct {
	Message Message
	State   SendState
	Err     error
}

// sendOp drives one message through idle, optimistic, persisting and then
// committed or rolled back. Every transition happens under the store lock.
type sendOp struct {
	store          *Store
	conversationID string
	content        string
	state          SendState

	temp Message
	// snapshot of the directory entry taken right before the optimistic write
	hadEntry bool
	snapshot Conversation
}

// Send posts content to a conversation optimistically and returns the
// persisted message. Blank content is rejected without touching the caches or
// the backend. On failure the optimistic changes are rolled back and the
// backend error is returned.
func (s *Store) Send(ctx context.Context, conversationID, content string) (Message, error) {
	op, err := s.beginSend(conversationID, content)
	if err != nil {
		return Message{}, err
	}
	return op.persist(ctx)
}

// SendAsync performs the optimistic phase before returning and persists in the
// background. The result is delivered once on the returned channel.
func (s *Store) SendAsync(ctx context.Context, conversationID, content string) <-chan SendResult {
	results := make(chan SendResult, 1)
	op, err := s.beginSend(conversationID, content)
	if err != nil {
		results <- SendResult{State: StateIdle, Err: err}
		close(results)
		return results
	}
	go func() {
		defer close(results)
		msg, err := op.persist(ctx)
		results <- SendResult{Message: msg, State: op.finalState(), Err: err}
	}()
	return results
}

func (s *Store) beginSend(conversationID, content string) (*sendOp, error) {
	if !s.session.Authenticated() {
		return nil, ErrAuthRequired
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	op := &sendOp{store: s, conversationID: conversationID, content: content, state: StateIdle}
	if err := op.applyOptimistic(); err != nil {
		return nil, err
	}
	return op, nil
}

// applyOptimistic appends the pending message and overwrites the directory
// preview in one critical section and publishes a single Change.
func (op *sendOp) applyOptimistic() error {
	s := op.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	op.temp = Message{
		ID:             s.newTempID(),
		ConversationID: op.conversationID,
		SenderID:       s.session.UserID,
		Content:        op.content,
		CreatedAt:      s.now(),
		Pending:        true,
	}
	s.timelines[op.conversationID] = append(s.timelines[op.conversationID], op.temp)

	scope := ScopeTimeline
	if entry, ok := s.directory[op.conversationID]; ok {
		if s.inflight[op.conversationID] == 0 {
			s.baselines[op.conversationID] = entry
		}
		op.hadEntry = true
		op.snapshot = entry
		entry.Preview = op.content
		entry.LastActivity = op.temp.CreatedAt
		s.directory[op.conversationID] = entry
		scope |= ScopeDirectory
	}
	s.inflight[op.conversationID]++
	op.state = StateOptimistic
	s.notifyLocked(Change{ConversationID: op.conversationID, Scope: scope})
	return nil
}

func (op *sendOp) persist(ctx context.Context) (Message, error) {
	s := op.store
	s.mu.Lock()
	op.state = StatePersisting
	s.mu.Unlock()

	row, err := s.backend.InsertMessage(ctx, op.conversationID, s.session.UserID, op.content)
	if err != nil {
		op.rollback()
		observability.IncSyncSend(StateRolledBack.String())
		s.logger.Warn("send failed, rolled back", "conversation_id", op.conversationID, "temp_id", op.temp.ID, "error", err)
		return Message{}, fmt.Errorf("send message: %w", err)
	}
	msg := op.commit(row)
	observability.IncSyncSend(StateCommitted.String())
	return msg, nil
}

// commit swaps the pending message for the persisted one. If the realtime echo
// already delivered the persisted row, the pending message is dropped instead.
func (op *sendOp) commit(row models.ConversationMessage) Message {
	s := op.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if op.state != StatePersisting {
		return messageFromRow(row)
	}

	timeline := s.timelines[op.conversationID]
	tempIdx := indexOf(timeline, op.temp.ID)
	switch {
	case indexOf(timeline, row.ID) >= 0:
		if tempIdx >= 0 {
			timeline = append(timeline[:tempIdx], timeline[tempIdx+1:]...)
		}
	case tempIdx >= 0:
		timeline[tempIdx] = messageFromRow(row)
	default:
		timeline = append(timeline, messageFromRow(row))
	}
	sortTimeline(timeline)
	s.timelines[op.conversationID] = timeline

	scope := ScopeTimeline
	if entry, ok := s.directory[op.conversationID]; ok && op.carriesOptimistic(entry) {
		entry.LastActivity = row.CreatedAt
		s.directory[op.conversationID] = entry
		scope |= ScopeDirectory
	} else if s.advancePreviewLocked(op.conversationID, row.Content, row.CreatedAt) {
		scope |= ScopeDirectory
	}

	s.releaseSendLocked(op.conversationID)
	op.state = StateCommitted
	s.notifyLocked(Change{ConversationID: op.conversationID, Scope: scope})

	msg := messageFromRow(row)
	msg.Sender = Classify(msg.SenderID, s.session.UserID)
	return msg
}

// rollback removes the pending message. If the directory entry still shows
// this send, its preview is rebuilt from what is left: the newest pending
// message, else the newest persisted one, else the entry from before any
// in-flight send. Only the first call has an effect.
func (op *sendOp) rollback() {
	s := op.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if op.state != StateOptimistic && op.state != StatePersisting {
		return
	}

	scope := Scope(0)
	timeline := s.timelines[op.conversationID]
	if idx := indexOf(timeline, op.temp.ID); idx >= 0 {
		timeline = append(timeline[:idx], timeline[idx+1:]...)
		s.timelines[op.conversationID] = timeline
		scope |= ScopeTimeline
	}

	// A refresh or a newer message may have replaced the entry since; only undo our own write.
	if entry, ok := s.directory[op.conversationID]; ok && op.carriesOptimistic(entry) {
		base, ok := s.baselines[op.conversationID]
		if !ok {
			base = op.snapshot
		}
		entry.Preview = base.Preview
		entry.LastActivity = base.LastActivity
		if n := len(timeline); n > 0 {
			if last := timeline[n-1]; last.Pending || !last.CreatedAt.Before(base.LastActivity) {
				entry.Preview = last.Content
				entry.LastActivity = last.CreatedAt
			}
		}
		s.directory[op.conversationID] = entry
		scope |= ScopeDirectory
	}

	s.releaseSendLocked(op.conversationID)
	op.state = StateRolledBack
	if scope != 0 {
		s.notifyLocked(Change{ConversationID: op.conversationID, Scope: scope})
	}
}

// releaseSendLocked must be called with s.mu held, once per send that reached
// the optimistic state.
func (s *Store) releaseSendLocked(conversationID string) {
	if s.inflight[conversationID]--; s.inflight[conversationID] <= 0 {
		delete(s.inflight, conversationID)
		delete(s.baselines, conversationID)
	}
}

func (op *sendOp) carriesOptimistic(entry Conversation) bool {
	return op.hadEntry && entry.Preview == op.content && entry.LastActivity.Equal(op.temp.CreatedAt)
}

func (op *sendOp) finalState() SendState {
	op.store.mu.Lock()
	defer op.store.mu.Unlock()
	return op.state
}

// advancePreviewLocked moves the directory preview forward to a message that is
// at least as recent as the entry's last activity.
func (s *Store) advancePreviewLocked(conversationID, content string, at time.Time) bool {
	entry, ok := s.directory[conversationID]
	if !ok || at.Before(entry.LastActivity) {
		return false
	}
	entry.Preview = content
	entry.LastActivity = at
	s.directory[conversationID] = entry
	return true
}
