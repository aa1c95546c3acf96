// Package api is the HTTP+JSON client for the UzonCalc backend.
//
// Every endpoint answers with an envelope {ok, data, code, message}. The
// client unwraps it, turns failures into *Error values and, unless a call
// opts out with StopNotifyError, reports them on the notification channel.
package api

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

	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
	"go.uber.org/zap"

	"github.com/uyoufu/uzoncalc/pkg/logging"
	"github.com/uyoufu/uzoncalc/pkg/notify"
	"github.com/uyoufu/uzoncalc/pkg/schema"
)

const (
	// DefaultBaseURL is where a local desktop backend listens.
	DefaultBaseURL = "http://127.0.0.1:18081"
	// DefaultAPIPrefix is prepended to every endpoint path.
	DefaultAPIPrefix = "/api/v1"
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIPrefix  string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Notifier   notify.Notifier
	Logger     *zap.Logger
	// Endpoints overrides execution endpoint paths by key (see Endpoint* constants).
	Endpoints map[string]string
	// Validate checks execution results against the exported JSON Schema.
	Validate bool
}

// Client is a lightweight UzonCalc API client. Safe for concurrent use
// once constructed, except SetToken which should be called before sharing.
type Client struct {
	BaseURL    string
	APIPrefix  string
	HTTPClient *http.Client

	token     string
	notifier  notify.Notifier
	logger    *zap.Logger
	endpoints map[string]string
	validator *schema.Validator
}

// New creates a client from opts, filling defaults for anything unset.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	prefix := opts.APIPrefix
	if prefix == "" {
		prefix = DefaultAPIPrefix
	}

	c := &Client{
		BaseURL:    baseURL,
		APIPrefix:  "/" + strings.Trim(prefix, "/"),
		HTTPClient: httpClient,
		token:      opts.Token,
		notifier:   notify.Or(opts.Notifier),
		logger:     logging.OrNop(opts.Logger),
		endpoints:  defaultEndpoints(),
	}
	for k, v := range opts.Endpoints {
		c.endpoints[k] = v
	}
	if opts.Validate {
		c.validator = schema.NewValidator()
	}
	return c
}

// SetToken replaces the bearer token, e.g. after SignIn.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Error is a failed API call: either a non-2xx HTTP status or an envelope
// with ok=false.
type Error struct {
	Method  string
	Path    string
	Status  int
	Code    int
	Message string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Status >= 400 {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Status, msg)
	}
	return fmt.Sprintf("%s %s: code %d: %s", e.Method, e.Path, e.Code, msg)
}

// IsNotFound reports whether err is an API error with HTTP 404 or code 404.
func IsNotFound(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusNotFound || apiErr.Code == http.StatusNotFound
	}
	return false
}

// envelope is the response wrapper used by every endpoint.
type envelope struct {
	OK      bool            `json:"ok"`
	Data    json.RawMessage `json:"data"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	// Detail is set by framework-level errors that bypass the envelope.
	Detail any `json:"detail,omitempty"`
}

// CallOption adjusts a single request.
type CallOption func(*callOptions)

type callOptions struct {
	stopNotifyError bool
}

// StopNotifyError suppresses the global error notification for this call;
// the error is still returned.
func StopNotifyError() CallOption {
	return func(o *callOptions) { o.stopNotifyError = true }
}

// do performs a request and returns the raw envelope data.
func (c *Client) do(ctx context.Context, method, path string, body any, opts ...CallOption) (json.RawMessage, error) {
	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}

	data, err := c.send(ctx, method, path, body)
	if err != nil {
		if !co.stopNotifyError && !errors.Is(err, context.Canceled) {
			c.notifier.Error(err.Error())
		}
		return nil, err
	}
	return data, nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s %s: marshal request: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+c.APIPrefix+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s %s: create request: %w", method, path, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.logger.Debug("api request failed",
			zap.String("method", method), zap.String("path", path),
			zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("%s %s: request: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	c.logger.Debug("api request",
		zap.String("method", method), zap.String("path", path),
		zap.Int("status", resp.StatusCode), zap.Duration("duration", time.Since(start)),
		zap.String("request_id", requestID))

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 400 {
		apiErr := &Error{Method: method, Path: path, Status: resp.StatusCode, Code: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Message = envelopeMessage(env)
			if env.Code != 0 {
				apiErr.Code = env.Code
			}
		} else {
			apiErr.Message = truncate(raw, 300)
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%s %s: parse response: %w", method, path, decodeErr)
	}
	if !env.OK {
		return nil, &Error{Method: method, Path: path, Status: resp.StatusCode, Code: env.Code, Message: envelopeMessage(env)}
	}
	return env.Data, nil
}

func envelopeMessage(env envelope) string {
	if env.Message != "" {
		return env.Message
	}
	switch d := env.Detail.(type) {
	case string:
		return d
	case nil:
		return ""
	default:
		b, _ := json.Marshal(d)
		return string(b)
	}
}

// call performs a request and decodes the envelope data into out.
func (c *Client) call(ctx context.Context, method, path string, body, out any, opts ...CallOption) error {
	data, err := c.do(ctx, method, path, body, opts...)
	if err != nil {
		return err
	}
	return decodeData(method, path, data, out)
}

func decodeData(method, path string, data json.RawMessage, out any) error {
	if out == nil || len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}

// truncate shortens b to at most width terminal cells without splitting a rune.
func truncate(b []byte, width int) string {
	return runewidth.Truncate(string(b), width, "...")
}
