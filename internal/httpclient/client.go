// Package httpclient calls the console's API routes with the session's bearer
// token, renewing the session first and retrying once after a 401.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oktotrack/console/internal/auth"
	"github.com/oktotrack/console/pkg/logger"
)

// Session is what the client needs from the auth layer.
type Session interface {
	EnsureValid(ctx context.Context) bool
	StoredToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, bool)
}

// Validator is implemented by refresh.Coordinator.
type Validator interface {
	EnsureValid(ctx context.Context) bool
}

// TokenSource is implemented by auth.Client.
type TokenSource interface {
	StoredToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, bool)
}

// Compose joins a validator and a token source into a Session.
func Compose(v Validator, ts TokenSource) Session {
	return composed{v, ts}
}

type composed struct {
	Validator
	TokenSource
}

// StatusError is a non-2xx answer.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, http.StatusText(e.Status))
}

type Client struct {
	baseURL string
	http    *http.Client
	session Session
}

func New(baseURL string, session Session, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc, session: session}
}

// Do sends body (JSON-encoded when non-nil) and decodes the response into out
// when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	if !c.session.EnsureValid(ctx) {
		return auth.ErrSessionExpired
	}
	token, err := c.session.StoredToken(ctx)
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}

	var payload []byte
	if body != nil {
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
	}

	status, respBody, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		fresh, ok := c.session.Refresh(ctx)
		if !ok {
			return auth.ErrSessionExpired
		}
		logger.Debugf("%s %s: retrying with renewed token", method, path)
		if status, respBody, err = c.send(ctx, method, path, payload, fresh); err != nil {
			return err
		}
	}
	if status < 200 || status > 299 {
		return &StatusError{Status: status, Body: respBody}
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (int, []byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &auth.NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &auth.NetworkError{Op: method + " " + path, Err: err}
	}
	return resp.StatusCode, b, nil
}
