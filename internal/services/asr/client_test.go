package asr_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"taskscribe/internal/logging"
	"taskscribe/internal/services"
	"taskscribe/internal/services/asr"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meeting.wav")
	if err := os.WriteFile(path, []byte("RIFF fake audio"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func newClient(t *testing.T, handler http.HandlerFunc) *asr.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts := asr.Options{Model: "large-v3", Device: "auto", ComputeType: "int8", BeamSize: 5}
	return asr.New(server.URL, opts, 5*time.Second, logging.NewNop())
}

func TestTranscribeReturnsSegments(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transcribe" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "large-v3" {
			t.Errorf("model field = %q", got)
		}
		if got := r.FormValue("beam_size"); got != "5" {
			t.Errorf("beam_size field = %q", got)
		}
		w.Write([]byte(`{"segments":[{"start":0,"end":2.5,"text":"hello there"}],"language":"en"}`))
	})

	segments, err := client.Transcribe(context.Background(), writeAudio(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(segments) != 1 || segments[0].Text != "hello there" {
		t.Fatalf("unexpected segments: %+v", segments)
	}
}

func TestTranscribeEmptyAudioIsValid(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"segments":[],"language":"en"}`))
	})

	segments, err := client.Transcribe(context.Background(), writeAudio(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(segments) != 0 {
		t.Fatalf("expected no segments, got %d", len(segments))
	}
}

func TestTranscribeServerErrorIsTransient(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Transcribe(context.Background(), writeAudio(t))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient, got %v", err)
	}
}

func TestTranscribeRejectsInvertedTimestamps(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"segments":[{"start":5,"end":1,"text":"bad"}]}`))
	})

	_, err := client.Transcribe(context.Background(), writeAudio(t))
	if !errors.Is(err, services.ErrInvalidOutput) {
		t.Fatalf("expected invalid output, got %v", err)
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := client.Transcribe(context.Background(), "/nonexistent/audio.wav")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestPing(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
