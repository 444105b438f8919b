// Package api is the typed client for the Pony Express REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pliu/ponyexpress/internal/models"
)

type Client struct {
	baseURL string
	http    *http.Client
	metrics *Metrics
}

type Option func(*Client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// request describes one API call. route is the path template used as a
// metric label, path the concrete path.
type request struct {
	method string
	route  string
	path   string
	token  string
	query  url.Values
	form   url.Values
	body   any
}

func (c *Client) do(ctx context.Context, req request, out any) (err error) {
	start := time.Now()
	status := 0
	defer func() {
		c.metrics.observe(req.method, req.route, status, time.Since(start))
	}()

	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.form != nil:
		body = strings.NewReader(req.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.body != nil:
		b, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", req.method, req.route, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", req.method, req.route, err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", req.method, req.path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(req.method, req.path, resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.method, req.path, err)
	}
	return nil
}

// Token exchanges credentials for a bearer token. The endpoint takes an
// OAuth2 password form, not JSON.
func (c *Client) Token(ctx context.Context, creds models.Credentials) (*models.AccessToken, error) {
	var out models.AccessToken
	err := c.do(ctx, request{
		method: http.MethodPost,
		route:  "/auth/token",
		path:   "/auth/token",
		form: url.Values{
			"username": {creds.Username},
			"password": {creds.Password},
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, reg models.Registration) (*models.User, error) {
	var out models.UserResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		route:  "/auth/registration",
		path:   "/auth/registration",
		body:   reg,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) Me(ctx context.Context, token string) (*models.User, error) {
	var out models.UserResponse
	err := c.do(ctx, request{method: http.MethodGet, route: "/users/me", path: "/users/me", token: token}, &out)
	if err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) Users(ctx context.Context, token string) ([]models.User, error) {
	var out models.UserCollection
	err := c.do(ctx, request{method: http.MethodGet, route: "/users", path: "/users", token: token}, &out)
	if err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) Chats(ctx context.Context, token string) ([]models.Chat, error) {
	var out models.ChatCollection
	err := c.do(ctx, request{method: http.MethodGet, route: "/chats", path: "/chats", token: token}, &out)
	if err != nil {
		return nil, err
	}
	return out.Chats, nil
}

func (c *Client) Chat(ctx context.Context, token string, chatID int) (*models.Chat, error) {
	var out models.ChatResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		route:  "/chats/{id}",
		path:   chatPath(chatID),
		token:  token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Chat, nil
}

// CreateChat sends the name both as the chat_name query parameter and in
// the JSON body; API versions differ in which one they read.
func (c *Client) CreateChat(ctx context.Context, token, name string) (*models.Chat, error) {
	var out models.ChatResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		route:  "/chats",
		path:   "/chats",
		token:  token,
		query:  url.Values{"chat_name": {name}},
		body:   map[string]string{"name": name},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Chat, nil
}

func (c *Client) RenameChat(ctx context.Context, token string, chatID int, name string) (*models.Chat, error) {
	var out models.ChatResponse
	err := c.do(ctx, request{
		method: http.MethodPut,
		route:  "/chats/{id}",
		path:   chatPath(chatID),
		token:  token,
		query:  url.Values{"new_name": {name}},
		body:   map[string]string{"name": name},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Chat, nil
}

func (c *Client) Messages(ctx context.Context, token string, chatID int) ([]models.Message, error) {
	var out models.MessageCollection
	err := c.do(ctx, request{
		method: http.MethodGet,
		route:  "/chats/{id}/messages",
		path:   chatPath(chatID) + "/messages",
		token:  token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) CreateMessage(ctx context.Context, token string, chatID int, text string) (*models.Message, error) {
	var out models.MessageResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		route:  "/chats/{id}/messages",
		path:   chatPath(chatID) + "/messages",
		token:  token,
		body:   map[string]string{"text": text},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Message, nil
}

func (c *Client) UpdateMessage(ctx context.Context, token string, chatID, messageID int, text string) (*models.Message, error) {
	var out models.MessageResponse
	err := c.do(ctx, request{
		method: http.MethodPut,
		route:  "/chats/{id}/messages/{messageId}",
		path:   messagePath(chatID, messageID),
		token:  token,
		body:   map[string]string{"text": text},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Message, nil
}

func (c *Client) DeleteMessage(ctx context.Context, token string, chatID, messageID int) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		route:  "/chats/{id}/messages/{messageId}",
		path:   messagePath(chatID, messageID),
		token:  token,
	}, nil)
}

func (c *Client) ChatUsers(ctx context.Context, token string, chatID int) ([]models.User, error) {
	var out models.UserCollection
	err := c.do(ctx, request{
		method: http.MethodGet,
		route:  "/chats/{id}/users",
		path:   chatPath(chatID) + "/users",
		token:  token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Users, nil
}

// AddChatUser returns the member list after the user was attached.
func (c *Client) AddChatUser(ctx context.Context, token string, chatID, userID int) ([]models.User, error) {
	var out models.UserCollection
	err := c.do(ctx, request{
		method: http.MethodPut,
		route:  "/chats/{id}/users/{userId}",
		path:   chatUserPath(chatID, userID),
		token:  token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Users, nil
}

// RemoveChatUser returns the member list after the user was detached.
func (c *Client) RemoveChatUser(ctx context.Context, token string, chatID, userID int) ([]models.User, error) {
	var out models.UserCollection
	err := c.do(ctx, request{
		method: http.MethodDelete,
		route:  "/chats/{id}/users/{userId}",
		path:   chatUserPath(chatID, userID),
		token:  token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Users, nil
}

func chatPath(chatID int) string {
	return "/chats/" + strconv.Itoa(chatID)
}

func messagePath(chatID, messageID int) string {
	return chatPath(chatID) + "/messages/" + strconv.Itoa(messageID)
}

func chatUserPath(chatID, userID int) string {
	return chatPath(chatID) + "/users/" + strconv.Itoa(userID)
}
