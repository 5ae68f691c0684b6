package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"robot-market/internal/auth"
	"robot-market/internal/models"
	"robot-market/internal/msgsync"
)

const defaultTimeout = 15 * time.Second

// StatusError is a non-2xx answer from the marketplace API.
type StatusError struct {
	Code    int
	Message string
	kind    error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("marketplace api: status %d", e.Code)
	}
	return fmt.Sprintf("marketplace api: status %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error { return e.kind }

// Client talks to the marketplace HTTP and websocket API on behalf of one
// session. It implements msgsync.Backend.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	dialer  *websocket.Dialer
	token   string
	logger  *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithDialer replaces the websocket dialer used by Subscribe.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// New builds an unauthenticated client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: defaultTimeout},
		dialer:  &websocket.Dialer{HandshakeTimeout: defaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ForSession returns a copy of the client that authenticates as s.
func (c *Client) ForSession(s msgsync.Session) *Client {
	cp := *c
	cp.token = s.Token
	return &cp
}

// SignIn exchanges credentials for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (msgsync.Session, error) {
	var res auth.Result
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &res); err != nil {
		return msgsync.Session{}, err
	}
	return sessionOf(res.User, res.Token), nil
}

// RestoreSession resolves a stored token to its session. An expired or revoked
// token yields msgsync.ErrAuthRequired.
func (c *Client) RestoreSession(ctx context.Context, token string) (msgsync.Session, error) {
	var principal auth.Principal
	scoped := c.ForSession(msgsync.Session{Token: token})
	if err := scoped.do(ctx, http.MethodGet, "/auth/session", nil, &principal); err != nil {
		return msgsync.Session{}, err
	}
	return sessionOf(principal, token), nil
}

// SignOut revokes the client's session token.
func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

func sessionOf(p auth.Principal, token string) msgsync.Session {
	return msgsync.Session{UserID: p.UserID, Email: p.Email, AccountType: p.AccountType, Token: token}
}

func (c *Client) ListConversationRows(ctx context.Context) ([]models.Conversation, error) {
	var resp struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

func (c *Client) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	var profile models.Profile
	err := c.do(ctx, http.MethodGet, "/profiles/"+url.PathEscape(userID), nil, &profile)
	return profile, err
}

func (c *Client) LatestMessage(ctx context.Context, conversationID string) (models.ConversationMessage, error) {
	var msg models.ConversationMessage
	err := c.do(ctx, http.MethodGet, messagesPath(conversationID)+"/latest", nil, &msg)
	return msg, err
}

func (c *Client) ListMessageRows(ctx context.Context, conversationID string) ([]models.ConversationMessage, error) {
	var resp struct {
		Messages []models.ConversationMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, messagesPath(conversationID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) InsertMessage(ctx context.Context, conversationID, senderID, content string) (models.ConversationMessage, error) {
	var msg models.ConversationMessage
	body := map[string]string{"content": content, "sender_id": senderID}
	err := c.do(ctx, http.MethodPost, messagesPath(conversationID), body, &msg)
	return msg, err
}

type triple struct {
	BuyerID  string `json:"buyer_id"`
	SellerID string `json:"seller_id"`
	RobotID  string `json:"robot_id"`
}

func (c *Client) FindConversation(ctx context.Context, buyerID, sellerID, robotID string) (models.Conversation, error) {
	var conv models.Conversation
	err := c.do(ctx, http.MethodPost, "/conversations/lookup", triple{buyerID, sellerID, robotID}, &conv)
	return conv, err
}

// CreateConversation returns the existing row with an error wrapping
// msgsync.ErrConflict when the triple is already taken.
func (c *Client) CreateConversation(ctx context.Context, buyerID, sellerID, robotID string) (models.Conversation, error) {
	var conv models.Conversation
	raw, err := c.send(ctx, http.MethodPost, "/conversations", triple{buyerID, sellerID, robotID})
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusConflict {
			var existing struct {
				Conversation models.Conversation `json:"conversation"`
			}
			if jsonErr := json.Unmarshal(raw, &existing); jsonErr == nil {
				conv = existing.Conversation
			}
		}
		return conv, err
	}
	if err := json.Unmarshal(raw, &conv); err != nil {
		return models.Conversation{}, fmt.Errorf("decode conversation: %w", err)
	}
	return conv, nil
}

func messagesPath(conversationID string) string {
	return "/conversations/" + url.PathEscape(conversationID) + "/messages"
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	raw, err := c.send(ctx, method, path, in)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// send performs one request and returns the response body. Non-2xx answers
// are returned as *StatusError together with the body.
func (c *Client) send(ctx context.Context, method, path string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}
	return raw, statusError(resp.StatusCode, raw)
}

func statusError(code int, raw []byte) *StatusError {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(raw, &body)

	e := &StatusError{Code: code, Message: body.Error}
	switch code {
	case http.StatusUnauthorized:
		e.kind = msgsync.ErrAuthRequired
	case http.StatusNotFound:
		e.kind = msgsync.ErrNotFound
	case http.StatusConflict:
		e.kind = msgsync.ErrConflict
	}
	return e
}

var _ msgsync.Backend = (*Client)(nil)
