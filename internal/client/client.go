package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chatrelay/internal/model"
)

// DefaultBackoff is how long the listen loop waits before reconnecting
// after a transport failure.
const DefaultBackoff = time.Second

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to a chat relay server. Safe for concurrent use: a
// typical process runs Listen in one goroutine while posting from
// another.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Backoff time.Duration

	mu    sync.RWMutex
	token string
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{},
		Backoff: DefaultBackoff,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges a username and password for a bearer token that is
// attached to every subsequent request.
func (c *Client) Login(ctx context.Context, username, password string) error {
	form := url.Values{"username": {username}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.doToken(req)
}

// GuestLogin obtains a token for a freshly created guest user.
func (c *Client) GuestLogin(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/guest-token", nil)
	if err != nil {
		return err
	}
	return c.doToken(req)
}

func (c *Client) doToken(req *http.Request) error {
	var tok tokenResponse
	if err := c.do(req, &tok); err != nil {
		return err
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("no access token in response")
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.mu.Unlock()
	return nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) Me(ctx context.Context) (model.User, error) {
	var user model.User
	err := c.getJSON(ctx, "/chat/me", &user)
	return user, err
}

func (c *Client) Sessions(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	err := c.getJSON(ctx, "/chat/me/sessions", &sessions)
	return sessions, err
}

func (c *Client) CreateSession(ctx context.Context) (model.Session, error) {
	var session model.Session
	err := c.postJSON(ctx, "/chat", nil, &session)
	return session, err
}

func (c *Client) Invite(ctx context.Context, sessionID, userID string) (model.Message, error) {
	var msg model.Message
	err := c.postJSON(ctx, "/chat/"+sessionID+"/invite", map[string]string{"user_id": userID}, &msg)
	return msg, err
}

func (c *Client) Post(ctx context.Context, sessionID, content string) (model.Message, error) {
	var msg model.Message
	err := c.postJSON(ctx, "/chat/"+sessionID+"/post", map[string]string{"content": content}, &msg)
	return msg, err
}

// Listen consumes the newline-delimited JSON stream and invokes fn for
// every decoded message. Any transport failure, including the server
// dropping the connection mid-stream, is absorbed: the loop backs off
// for a fixed interval and reconnects. It returns only when ctx is
// cancelled, and cancellation interrupts both an in-progress read and a
// backoff sleep promptly.
func (c *Client) Listen(ctx context.Context, fn func(model.Message)) error {
	for {
		if err := c.listenOnce(ctx, fn); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.sleep(ctx); err != nil {
			return err
		}
	}
}

func (c *Client) listenOnce(ctx context.Context, fn func(model.Message)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/chat/listen", nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg model.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		fn(msg)
	}
	return scanner.Err()
}

func (c *Client) sleep(ctx context.Context) error {
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	timer := time.NewTimer(backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	c.authorize(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func responseError(resp *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	message := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		if body.Error != "" {
			message = body.Error
		} else if body.Message != "" {
			message = body.Message
		}
	}
	return &APIError{Status: resp.StatusCode, Message: message}
}
