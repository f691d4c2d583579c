package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taskscribe/internal/logging"
	"taskscribe/internal/services"
)

const defaultTimeout = 600 * time.Second

// Turn is one speaker-attributed span from the diarization server.
type Turn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

type diarizeResponse struct {
	Turns []Turn `json:"turns"`
	Error string `json:"error"`
}

// Client talks to a pyannote diarization HTTP server. The server needs a
// Hugging Face token for its gated models; when none is configured the
// client refuses with services.ErrMissingCredential so the stage can fall
// back to the unknown-speaker labeling instead of failing the job.
type Client struct {
	baseURL string
	model   string
	hfToken string
	client  *http.Client
	logger  *logging.Logger
}

// New creates a diarization client. An empty token is allowed; calls will
// report the missing credential.
func New(baseURL, model, hfToken string, timeout time.Duration, logger *logging.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		hfToken: strings.TrimSpace(hfToken),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Enabled reports whether a credential is configured.
func (c *Client) Enabled() bool {
	return c.hfToken != ""
}

// Diarize uploads the audio and returns speaker turns ordered by start time.
func (c *Client) Diarize(ctx context.Context, audioPath string) ([]Turn, error) {
	if !c.Enabled() {
		return nil, services.Wrap(services.ErrMissingCredential, "", "diarize",
			"no hf_token configured", nil)
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "diarize",
			fmt.Sprintf("audio file %s unreadable", audioPath), err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy audio: %w", err)
	}
	if c.model != "" {
		if err := writer.WriteField("model", c.model); err != nil {
			return nil, fmt.Errorf("write model field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finish upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/diarize", &body)
	if err != nil {
		return nil, fmt.Errorf("build diarize request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.hfToken)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "", "diarize", "deadline exceeded", err)
		}
		return nil, services.Wrap(services.ErrTransient, "", "diarize", "server unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "", "diarize", "read response", err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, services.Wrap(services.ErrMissingCredential, "", "diarize",
			"hf_token rejected by server", nil)
	case resp.StatusCode >= 500:
		return nil, services.Wrap(services.ErrTransient, "", "diarize",
			fmt.Sprintf("server returned %d", resp.StatusCode), nil)
	default:
		return nil, services.Wrap(services.ErrInvalidOutput, "", "diarize",
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var decoded diarizeResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, services.Wrap(services.ErrInvalidOutput, "", "diarize", "malformed response", err)
	}
	if decoded.Error != "" {
		return nil, services.Wrap(services.ErrTransient, "", "diarize", decoded.Error, nil)
	}
	for i, turn := range decoded.Turns {
		if strings.TrimSpace(turn.Speaker) == "" {
			return nil, services.Wrap(services.ErrInvalidOutput, "", "diarize",
				fmt.Sprintf("turn %d has no speaker label", i), nil)
		}
	}
	c.logger.Debug("diarization complete", logging.Int("turns", len(decoded.Turns)))
	return decoded.Turns, nil
}

// Ping checks the server health endpoint. It does not validate the token.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "", "diarize ping", "server unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrTransient, "", "diarize ping",
			fmt.Sprintf("server returned %d", resp.StatusCode), nil)
	}
	return nil
}
