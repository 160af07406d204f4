// Package upstream talks to the trading platform's HTTP API: password login
// and the profile lookup that resolves a web-extracted token to a user.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/tradegate/internal/common"
	"github.com/dmitrijs2005/tradegate/internal/logging"
)

const (
	loginPath   = "/api/auth/login"
	profilePath = "/api/user/me"

	maxErrorBody = 512
)

// StatusError is returned for non-2xx responses. It unwraps to the matching
// common sentinel.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.Code)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusUnauthorized:
		return common.ErrorUnauthorized
	case e.Code == http.StatusForbidden:
		return common.ErrForbidden
	case e.Code == http.StatusNotFound:
		return common.ErrorNotFound
	case e.Code == http.StatusTooManyRequests || e.Code >= 500:
		return common.ErrUnavailable
	}
	return common.ErrorInternal
}

func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Device describes the client installation to the platform.
type Device struct {
	ID        string `json:"deviceId"`
	Type      string `json:"deviceType"`
	Timezone  string `json:"timezone"`
	UserAgent string `json:"userAgent"`
}

type LoginResult struct {
	Token  string
	UserID string
	Email  string
}

type Profile struct {
	ExternalUserID string
	Name           string
	Email          string
}

type Client struct {
	base    *url.URL
	http    *http.Client
	logger  logging.Logger
	backoff func() retry.Backoff
}

type Option func(*Client)

// WithHTTPClient replaces the default client; its Timeout is kept as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBackoff sets the retry policy used for transient failures.
func WithBackoff(fn func() retry.Backoff) Option {
	return func(c *Client) { c.backoff = fn }
}

func DefaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(2, retry.WithJitterPercent(20, retry.NewExponential(250*time.Millisecond)))
}

func New(baseURL string, timeout time.Duration, logger logging.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("upstream base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream base url: unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		base:    u,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("module", "upstream"),
		backoff: DefaultBackoff,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device
}

type loginResponse struct {
	Token       string          `json:"token"`
	AccessToken string          `json:"access_token"`
	UserID      json.RawMessage `json:"userId"`
	User        struct {
		ID    json.RawMessage `json:"id"`
		Email string          `json:"email"`
	} `json:"user"`
}

// Login exchanges email and password for an API token.
func (c *Client) Login(ctx context.Context, email, password string, dev Device) (LoginResult, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, loginPath, "", loginRequest{Email: email, Password: password, Device: dev}, &resp)
	if err != nil {
		return LoginResult{}, err
	}

	res := LoginResult{
		Token:  firstNonEmpty(resp.Token, resp.AccessToken),
		UserID: firstNonEmpty(rawID(resp.UserID), rawID(resp.User.ID)),
		Email:  firstNonEmpty(resp.User.Email, email),
	}
	if res.Token == "" {
		return LoginResult{}, fmt.Errorf("%w: login response without token", common.ErrorInternal)
	}
	return res, nil
}

type profileResponse struct {
	ID       json.RawMessage `json:"id"`
	UserID   json.RawMessage `json:"userId"`
	Name     string          `json:"name"`
	FullName string          `json:"fullName"`
	Email    string          `json:"email"`
}

// Profile resolves the user behind token.
func (c *Client) Profile(ctx context.Context, token string) (Profile, error) {
	var resp profileResponse
	if err := c.do(ctx, http.MethodGet, profilePath, token, nil, &resp); err != nil {
		return Profile{}, err
	}
	return Profile{
		ExternalUserID: firstNonEmpty(rawID(resp.UserID), rawID(resp.ID)),
		Name:           firstNonEmpty(resp.Name, resp.FullName),
		Email:          resp.Email,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = b
	}

	endpoint := c.base.JoinPath(path).String()
	attempt := 0

	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempt++
		err := c.once(ctx, method, endpoint, token, body, out)
		if err == nil {
			return nil
		}

		var se *StatusError
		if errors.As(err, &se) && !se.retryable() {
			return err
		}
		if errors.Is(err, common.ErrorInternal) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		c.logger.Warn(ctx, "upstream request failed", "method", method, "path", path, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
}

func (c *Client) once(ctx context.Context, method, endpoint, token string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", common.ErrorInternal, err)
	}
	return nil
}

// rawID accepts ids sent as JSON strings or numbers.
func rawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return strings.TrimSpace(str)
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String()
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
