package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taskscribe/internal/logging"
	"taskscribe/internal/services"
)

const (
	defaultTimeout  = 120 * time.Second
	maxAttempts     = 3
	baseRetryDelay  = 500 * time.Millisecond
	maxResponseSize = 4 << 20
)

// Message is a single chat turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

// Client talks to an Ollama server's /api/chat endpoint. Responses are
// requested in JSON format and decoded into caller-provided structures.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *logging.Logger
	sleeper func(time.Duration)
}

// Option customizes client construction.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithSleeper overrides the retry delay function. Tests use this to avoid
// real sleeps.
func WithSleeper(fn func(time.Duration)) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleeper = fn
		}
	}
}

// New creates an Ollama client for the given base URL and model.
func New(baseURL, model string, timeout time.Duration, logger *logging.Logger, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		sleeper: time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// CompleteJSON sends the messages to the model, requests a JSON response,
// and decodes the reply into target. Transport failures and 5xx responses
// retry with backoff inside the call; a reply that is not valid JSON for
// target comes back as services.ErrInvalidOutput so the caller can fall
// back to heuristics.
func (c *Client) CompleteJSON(ctx context.Context, messages []Message, target any) error {
	content, err := c.complete(ctx, messages)
	if err != nil {
		return err
	}
	if err := DecodeLLMJSON(content, target); err != nil {
		return services.Wrap(services.ErrInvalidOutput, "", "ollama chat",
			"model reply is not the expected JSON", err)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, messages []Message) (string, error) {
	payload := chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Format:   "json",
		Options:  map[string]any{"temperature": 0.1},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := retryDelay(attempt, lastErr)
			c.logger.Debug("retrying ollama request",
				logging.Int("attempt", attempt),
				logging.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return "", c.wrapContextErr(ctx.Err())
			default:
			}
			c.sleeper(delay)
		}

		content, err := c.doChat(ctx, body)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !services.IsRetryable(err) {
			return "", err
		}
	}
	return "", services.Wrap(services.ErrExhausted, "", "ollama chat",
		fmt.Sprintf("gave up after %d attempts", maxAttempts), lastErr)
}

func (c *Client) doChat(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", c.wrapContextErr(err)
		}
		return "", services.Wrap(services.ErrTransient, "", "ollama chat", "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "", "ollama chat", "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", services.Wrap(services.ErrTransient, "", "ollama chat",
			fmt.Sprintf("server returned %d", resp.StatusCode), retryAfterErr(resp))
	case resp.StatusCode == http.StatusNotFound:
		return "", services.Wrap(services.ErrConfiguration, "", "ollama chat",
			fmt.Sprintf("model %q not available", c.model), nil)
	default:
		return "", services.Wrap(services.ErrInvalidOutput, "", "ollama chat",
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, truncate(string(data), 200)), nil)
	}

	var decoded chatResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", services.Wrap(services.ErrInvalidOutput, "", "ollama chat", "malformed response envelope", err)
	}
	if decoded.Error != "" {
		return "", services.Wrap(services.ErrTransient, "", "ollama chat", decoded.Error, nil)
	}
	if strings.TrimSpace(decoded.Message.Content) == "" {
		return "", services.Wrap(services.ErrInvalidOutput, "", "ollama chat", "empty model reply", nil)
	}
	return decoded.Message.Content, nil
}

// Ping verifies the server is reachable and reports its version string.
func (c *Client) Ping(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return "", fmt.Errorf("build version request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "", "ollama ping", "server unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", services.Wrap(services.ErrTransient, "", "ollama ping",
			fmt.Sprintf("server returned %d", resp.StatusCode), nil)
	}
	var version struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return "", nil
	}
	return version.Version, nil
}

func (c *Client) wrapContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "", "ollama chat", "deadline exceeded", err)
	}
	return err
}

type retryAfterError struct {
	delay time.Duration
}

func (e *retryAfterError) Error() string {
	return fmt.Sprintf("retry after %s", e.delay)
}

func retryAfterErr(resp *http.Response) error {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return nil
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds <= 0 {
		return nil
	}
	return &retryAfterError{delay: time.Duration(seconds) * time.Second}
}

func retryDelay(attempt int, lastErr error) time.Duration {
	var ra *retryAfterError
	if errors.As(lastErr, &ra) {
		return ra.delay
	}
	delay := baseRetryDelay
	for i := 1; i < attempt-1; i++ {
		delay *= 2
	}
	return delay
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// DecodeLLMJSON decodes a model reply into target, tolerating markdown
// code fences and leading prose around the JSON payload.
func DecodeLLMJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if fenced, ok := stripCodeFence(trimmed); ok {
		trimmed = fenced
	}
	if start := strings.IndexAny(trimmed, "{["); start > 0 {
		trimmed = trimmed[start:]
	}
	return json.Unmarshal([]byte(trimmed), target)
}

func stripCodeFence(s string) (string, bool) {
	if !strings.HasPrefix(s, "```") {
		return s, false
	}
	body := strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		body = body[idx+1:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body), true
}
