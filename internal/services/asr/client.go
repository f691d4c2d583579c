package asr

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
	"strconv"
	"strings"
	"time"

	"taskscribe/internal/logging"
	"taskscribe/internal/services"
)

const defaultTimeout = 600 * time.Second

// Segment is one transcribed span as returned by the server.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type transcribeResponse struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
	Error    string    `json:"error"`
}

// Options carries the transcription knobs forwarded to the server.
type Options struct {
	Model       string
	Device      string
	ComputeType string
	BeamSize    int
}

// Client talks to a faster-whisper HTTP server. The server accepts a
// multipart upload on /v1/transcribe and returns timed segments.
type Client struct {
	baseURL string
	opts    Options
	client  *http.Client
	logger  *logging.Logger
}

// New creates an ASR client.
func New(baseURL string, opts Options, timeout time.Duration, logger *logging.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Transcribe uploads the audio file and returns the timed segments. An
// empty segment list is valid output; silence produces zero segments.
func (c *Client) Transcribe(ctx context.Context, audioPath string) ([]Segment, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "asr transcribe",
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
	fields := map[string]string{
		"model":        c.opts.Model,
		"device":       c.opts.Device,
		"compute_type": c.opts.ComputeType,
	}
	if c.opts.BeamSize > 0 {
		fields["beam_size"] = strconv.Itoa(c.opts.BeamSize)
	}
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finish upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcribe", &body)
	if err != nil {
		return nil, fmt.Errorf("build transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "", "asr transcribe", "deadline exceeded", err)
		}
		return nil, services.Wrap(services.ErrTransient, "", "asr transcribe", "server unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "", "asr transcribe", "read response", err)
	}
	if resp.StatusCode >= 500 {
		return nil, services.Wrap(services.ErrTransient, "", "asr transcribe",
			fmt.Sprintf("server returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrInvalidOutput, "", "asr transcribe",
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var decoded transcribeResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, services.Wrap(services.ErrInvalidOutput, "", "asr transcribe", "malformed response", err)
	}
	if decoded.Error != "" {
		return nil, services.Wrap(services.ErrTransient, "", "asr transcribe", decoded.Error, nil)
	}

	for i, seg := range decoded.Segments {
		if seg.End < seg.Start {
			return nil, services.Wrap(services.ErrInvalidOutput, "", "asr transcribe",
				fmt.Sprintf("segment %d has end %.2f before start %.2f", i, seg.End, seg.Start), nil)
		}
	}
	c.logger.Debug("transcription complete",
		logging.Int("segments", len(decoded.Segments)),
		logging.String("language", decoded.Language))
	return decoded.Segments, nil
}

// Ping checks the server health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "", "asr ping", "server unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrTransient, "", "asr ping",
			fmt.Sprintf("server returned %d", resp.StatusCode), nil)
	}
	return nil
}
