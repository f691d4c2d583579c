package ollama_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskscribe/internal/logging"
	"taskscribe/internal/services"
	"taskscribe/internal/services/ollama"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *ollama.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return ollama.New(server.URL, "test-model", 5*time.Second, logging.NewNop(),
		ollama.WithSleeper(func(time.Duration) {}))
}

func TestCompleteJSONDecodesReply(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"message":{"content":"{\"answer\":42}"}}`))
	})

	var out struct {
		Answer int `json:"answer"`
	}
	err := client.CompleteJSON(context.Background(), []ollama.Message{{Role: "user", Content: "hi"}}, &out)
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if out.Answer != 42 {
		t.Fatalf("answer = %d, want 42", out.Answer)
	}
}

func TestCompleteJSONStripsCodeFence(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":"` + "```json\\n{\\\"answer\\\": 7}\\n```" + `"}}`))
	})

	var out struct {
		Answer int `json:"answer"`
	}
	if err := client.CompleteJSON(context.Background(), nil, &out); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if out.Answer != 7 {
		t.Fatalf("answer = %d, want 7", out.Answer)
	}
}

func TestCompleteJSONRetriesServerErrors(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"message":{"content":"{\"ok\":true}"}}`))
	})

	var out struct {
		OK bool `json:"ok"`
	}
	if err := client.CompleteJSON(context.Background(), nil, &out); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestCompleteJSONExhaustsRetries(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	var out struct{}
	err := client.CompleteJSON(context.Background(), nil, &out)
	if !errors.Is(err, services.ErrExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
}

func TestCompleteJSONInvalidReply(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":"definitely not json"}}`))
	})

	var out struct {
		Answer int `json:"answer"`
	}
	err := client.CompleteJSON(context.Background(), nil, &out)
	if !errors.Is(err, services.ErrInvalidOutput) {
		t.Fatalf("expected invalid output, got %v", err)
	}
}

func TestCompleteJSONMissingModel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	var out struct{}
	err := client.CompleteJSON(context.Background(), nil, &out)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestPing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/version" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"version":"0.5.0"}`))
	})

	version, err := client.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if version != "0.5.0" {
		t.Fatalf("version = %q", version)
	}
}

func TestDecodeLLMJSONLeadingProse(t *testing.T) {
	var out struct {
		Name string `json:"name"`
	}
	if err := ollama.DecodeLLMJSON("Here is the result: {\"name\":\"alice\"}", &out); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if out.Name != "alice" {
		t.Fatalf("name = %q", out.Name)
	}
}
