package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"robot-market/internal/models"
	"robot-market/internal/observability"
)

// Publisher mirrors change events to an external broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

const subscriberBuffer = 32

type client struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	if c.conn == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Subscription is an in-process listener on one topic.
type Subscription struct {
	topic  string
	events chan models.ChangeEvent
	hub    *Hub
	once   sync.Once
}

// Events delivers change events until Close is called.
func (s *Subscription) Events() <-chan models.ChangeEvent {
	return s.events
}

// Close detaches the subscription; calling it more than once is safe.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.hub.removeSubscriber(s)
	})
	return nil
}

// Hub maintains realtime rooms keyed by topic.
type Hub struct {
	rooms       map[string]map[*websocket.Conn]*client
	subscribers map[string]map[*Subscription]struct{}
	publisher   Publisher
	logger      *slog.Logger
	mu          sync.RWMutex
}

// NewHub creates an empty hub. publisher may be nil.
func NewHub(publisher Publisher, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:       make(map[string]map[*websocket.Conn]*client),
		subscribers: make(map[string]map[*Subscription]struct{}),
		publisher:   publisher,
		logger:      logger,
	}
}

// AddClient registers a websocket connection to a topic room.
func (h *Hub) AddClient(topic string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[topic]; !ok {
		h.rooms[topic] = make(map[*websocket.Conn]*client)
	}
	h.rooms[topic][conn] = &client{conn: conn, info: info}
}

// RemoveClient removes a websocket connection from a topic room.
func (h *Hub) RemoveClient(topic string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[topic]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, topic)
		}
	}
}

func (h *Hub) ping(topic string, conn *websocket.Conn) error {
	h.mu.RLock()
	c, ok := h.rooms[topic][conn]
	h.mu.RUnlock()
	if !ok || c.conn == nil {
		return nil
	}
	return c.ping()
}

// Subscribe registers an in-process listener on topic.
func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &Subscription{topic: topic, events: make(chan models.ChangeEvent, subscriberBuffer), hub: h}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[topic]; !ok {
		h.subscribers[topic] = make(map[*Subscription]struct{})
	}
	h.subscribers[topic][sub] = struct{}{}
	return sub
}

func (h *Hub) removeSubscriber(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subscribers[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subscribers, sub.topic)
		}
	}
	close(sub.events)
}

// PublishConversation notifies both participants that a conversation changed.
func (h *Hub) PublishConversation(ctx context.Context, changeType models.ChangeType, conv models.Conversation) {
	for _, userID := range []string{conv.BuyerID, conv.SellerID} {
		c := conv
		h.publish(ctx, models.ChangeEvent{
			Type:            changeType,
			Table:           models.TableConversations,
			Topic:           models.ConversationsTopic(userID),
			Conversation:    &c,
			CommitTimestamp: conv.UpdatedAt,
		})
	}
}

// PublishMessage notifies listeners of a conversation that a message was inserted.
func (h *Hub) PublishMessage(ctx context.Context, msg models.ConversationMessage) {
	h.publish(ctx, models.ChangeEvent{
		Type:            models.ChangeInsert,
		Table:           models.TableConversationMessages,
		Topic:           models.MessagesTopic(msg.ConversationID),
		Message:         &msg,
		CommitTimestamp: msg.CreatedAt,
	})
}

func (h *Hub) publish(ctx context.Context, event models.ChangeEvent) {
	observability.IncRealtimeChange(event.Table, string(event.Type))

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encode change event", "topic", event.Topic, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[event.Topic]))
	for _, c := range h.rooms[event.Topic] {
		clients = append(clients, c)
	}
	for sub := range h.subscribers[event.Topic] {
		select {
		case sub.events <- event:
		default:
			h.logger.Warn("subscriber buffer full, dropping change", "topic", event.Topic)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(payload); err != nil {
			h.logger.Warn("websocket write error", "topic", event.Topic, "conn_id", c.info.ConnID, "error", err)
			c.conn.Close()
			h.RemoveClient(event.Topic, c.conn)
			h.publishWSError(ctx, event.Topic, c.info, err)
		}
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, event.Topic, event); err != nil {
			h.logger.Warn("broker fan-out failed", "topic", event.Topic, "error", err)
		}
	}
}

// PublishLifecycle mirrors a websocket lifecycle event to the broker.
func (h *Hub) PublishLifecycle(ctx context.Context, event string, topic string, info ConnInfo, reason string) {
	observability.IncWSEvent(kindOf(topic), event)
	if h.publisher == nil {
		return
	}
	envelope := observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Headers:   observability.BuildHeaders(info.RequestID, info.TraceID),
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"topic":       topic,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}
	_ = h.publisher.Publish(ctx, wsRoutingKey(topic), envelope)
}

func (h *Hub) publishWSError(ctx context.Context, topic string, info ConnInfo, err error) {
	h.PublishLifecycle(ctx, "ws_error", topic, info, err.Error())
}

// Stats returns the number of websocket clients and in-process subscribers per topic.
func (h *Hub) Stats() map[string][2]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string][2]int)
	for topic, conns := range h.rooms {
		s := out[topic]
		s[0] = len(conns)
		out[topic] = s
	}
	for topic, subs := range h.subscribers {
		s := out[topic]
		s[1] = len(subs)
		out[topic] = s
	}
	return out
}

func kindOf(topic string) string {
	if len(topic) >= len(models.TableConversationMessages) && topic[:len(models.TableConversationMessages)] == models.TableConversationMessages {
		return "messages"
	}
	return "conversations"
}

func wsRoutingKey(topic string) string {
	return "ws_events." + kindOf(topic)
}
