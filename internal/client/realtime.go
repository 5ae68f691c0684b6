package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"robot-market/internal/models"
	"robot-market/internal/msgsync"
)

const eventBuffer = 32

var (
	conversationsPrefix = models.ConversationsTopic("")
	messagesPrefix      = models.MessagesTopic("")
)

// Subscribe opens the realtime websocket serving topic. The server scopes
// conversation topics to the session user.
func (c *Client) Subscribe(ctx context.Context, topic string) (msgsync.Subscription, error) {
	path, err := realtimePath(topic)
	if err != nil {
		return nil, err
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, statusError(resp.StatusCode, nil)
		}
		return nil, fmt.Errorf("dial %s: %w", topic, err)
	}

	sub := &subscription{
		topic:  topic,
		conn:   conn,
		events: make(chan models.ChangeEvent, eventBuffer),
		done:   make(chan struct{}),
	}
	go sub.readLoop(c)
	return sub, nil
}

func realtimePath(topic string) (string, error) {
	switch {
	case strings.HasPrefix(topic, conversationsPrefix):
		return "/ws/conversations", nil
	case strings.HasPrefix(topic, messagesPrefix):
		id := strings.TrimPrefix(topic, messagesPrefix)
		if id == "" {
			break
		}
		return "/ws/conversations/" + url.PathEscape(id) + "/messages", nil
	}
	return "", fmt.Errorf("unsupported realtime topic %q", topic)
}

type subscription struct {
	topic  string
	conn   *websocket.Conn
	events chan models.ChangeEvent
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Events() <-chan models.ChangeEvent {
	return s.events
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *subscription) readLoop(c *Client) {
	defer close(s.events)
	for {
		var ev models.ChangeEvent
		if err := s.conn.ReadJSON(&ev); err != nil {
			select {
			case <-s.done:
			default:
				c.logger.Warn("realtime subscription ended", "topic", s.topic, "error", err)
			}
			return
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}
