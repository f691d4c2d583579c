package diarize_test

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
	"taskscribe/internal/services/diarize"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meeting.wav")
	if err := os.WriteFile(path, []byte("RIFF fake audio"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func newClient(t *testing.T, token string, handler http.HandlerFunc) *diarize.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return diarize.New(server.URL, "pyannote/speaker-diarization-3.1", token, 5*time.Second, logging.NewNop())
}

func TestDiarizeReturnsTurns(t *testing.T) {
	client := newClient(t, "hf_secret", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer hf_secret" {
			t.Errorf("authorization header = %q", got)
		}
		w.Write([]byte(`{"turns":[{"start":0,"end":3,"speaker":"SPEAKER_00"},{"start":3,"end":6,"speaker":"SPEAKER_01"}]}`))
	})

	turns, err := client.Diarize(context.Background(), writeAudio(t))
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	if len(turns) != 2 || turns[1].Speaker != "SPEAKER_01" {
		t.Fatalf("unexpected turns: %+v", turns)
	}
}

func TestDiarizeWithoutTokenReportsMissingCredential(t *testing.T) {
	client := newClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		t.Error("server must not be called without a credential")
	})

	_, err := client.Diarize(context.Background(), writeAudio(t))
	if !errors.Is(err, services.ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
	if client.Enabled() {
		t.Fatal("Enabled should be false without token")
	}
}

func TestDiarizeRejectedTokenReportsMissingCredential(t *testing.T) {
	client := newClient(t, "hf_bad", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Diarize(context.Background(), writeAudio(t))
	if !errors.Is(err, services.ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
}

func TestDiarizeServerErrorIsTransient(t *testing.T) {
	client := newClient(t, "hf_secret", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Diarize(context.Background(), writeAudio(t))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient, got %v", err)
	}
}

func TestDiarizeRejectsUnlabeledTurns(t *testing.T) {
	client := newClient(t, "hf_secret", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"turns":[{"start":0,"end":3,"speaker":"  "}]}`))
	})

	_, err := client.Diarize(context.Background(), writeAudio(t))
	if !errors.Is(err, services.ErrInvalidOutput) {
		t.Fatalf("expected invalid output, got %v", err)
	}
}
