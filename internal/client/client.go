// Package client talks to the schedule API the way the mobile app does:
// bearer token injection, envelope decoding and token invalidation on 401.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"schedule-management-backend/internal/config"
)

// ErrUnauthorized is returned after a 401; the stored token is already cleared.
var ErrUnauthorized = errors.New("unauthorized: please log in again")

// APIError is any other non-2xx response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsCode reports whether err is an *APIError with the given error code.
func IsCode(err error, code string) bool {
	var e *APIError
	return errors.As(err, &e) && e.Code == code
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	logger  *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(baseURL string, tokens TokenStore, opts ...Option) *Client {
	if tokens == nil {
		tokens = &MemoryTokenStore{}
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FromConfig resolves the base URL from cfg and uses its timeout.
func FromConfig(cfg config.ClientConfig, tokens TokenStore, logger *zap.Logger) (*Client, error) {
	base, err := cfg.ResolveBaseURL()
	if err != nil {
		return nil, err
	}
	return New(base, tokens,
		WithHTTPClient(&http.Client{Timeout: config.Duration(cfg.Timeout, 30*time.Second)}),
		WithLogger(logger),
	), nil
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Tokens() TokenStore { return c.tokens }

// envelope accepts both {"success": true} and {"status": "success"}.
type envelope struct {
	Success   *bool           `json:"success"`
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"error_code"`
	Error     string          `json:"error"`
}

func (e envelope) ok() bool {
	if e.Success != nil {
		return *e.Success
	}
	return e.Status == "success"
}

// Do sends body as JSON and decodes the envelope's data into out.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Platform", "cli")
	if tok, err := c.tokens.Load(); err == nil && tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api call",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		if err := c.tokens.Clear(); err != nil {
			c.logger.Warn("clear token", zap.Error(err))
		}
		return ErrUnauthorized
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 300 || !env.ok() {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Code: env.ErrorCode, Message: msg}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
