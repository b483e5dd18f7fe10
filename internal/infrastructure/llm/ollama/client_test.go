package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"datanav/internal/core/domain"
	"datanav/internal/core/ports"
)

func TestCompleteTrimsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req["model"] != "llama3.2" || req["stream"] != false {
			http.Error(w, "unexpected request shape", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"response":"  Spending rose 4% in 2023 [1].  "}`))
	}))
	defer server.Close()

	client := New(server.URL, "nomic-embed-text")
	if client.Name() != "ollama" {
		t.Fatalf("expected default name ollama, got %q", client.Name())
	}

	text, err := client.Complete(context.Background(), "question", "llama3.2")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "Spending rose 4% in 2023 [1]." {
		t.Fatalf("unexpected completion: %q", text)
	}
}

func TestCompleteServerErrorIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model is loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "nomic-embed-text")
	_, err := client.Complete(context.Background(), "question", "llama3.2")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if !strings.Contains(err.Error(), "model is loading") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestCompleteRejectionSkipsRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "prompt too large", http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(server.URL, "nomic-embed-text")
	_, err := client.Complete(context.Background(), "question", "llama3.2")
	if !domain.IsKind(err, domain.ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}
}

func TestCompleteStreamDeliversChunksUntilDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["stream"] != true {
			http.Error(w, "expected streaming request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"response":"Spending ","done":false}` + "\n"))
		_, _ = w.Write([]byte(`{"response":"rose 4% [1].","done":false}` + "\n"))
		_, _ = w.Write([]byte(`{"response":"","done":true}` + "\n"))
	}))
	defer server.Close()

	client := New(server.URL, "nomic-embed-text")
	stream, err := client.CompleteStream(context.Background(), "question", "llama3.2")
	if err != nil {
		t.Fatalf("CompleteStream() error = %v", err)
	}

	var b strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			t.Fatalf("unexpected stream error: %v", chunk.Err)
		}
		b.WriteString(chunk.Content)
	}
	if got := b.String(); got != "Spending rose 4% [1]." {
		t.Fatalf("unexpected streamed text: %q", got)
	}
}

func TestCompleteStreamSurfacesDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"response":"partial","done":false}` + "\n"))
		_, _ = w.Write([]byte("not json\n"))
	}))
	defer server.Close()

	client := New(server.URL, "nomic-embed-text")
	stream, err := client.CompleteStream(context.Background(), "question", "llama3.2")
	if err != nil {
		t.Fatalf("CompleteStream() error = %v", err)
	}

	var chunks []ports.StreamChunk
	for chunk := range stream {
		chunks = append(chunks, chunk)
	}
	if len(chunks) == 0 {
		t.Fatalf("expected at least one chunk")
	}
	last := chunks[len(chunks)-1]
	if last.Err == nil {
		t.Fatalf("expected terminal error chunk, got %+v", chunks)
	}
}

func TestCompleteStreamRequestErrorIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := New(server.URL, "nomic-embed-text")
	_, err := client.CompleteStream(context.Background(), "question", "llama3.2")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestEmbedQueryReturnsVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model != "nomic-embed-text" || len(req.Input) != 1 {
			http.Error(w, "unexpected embed request", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer server.Close()

	client := New(server.URL, "nomic-embed-text")
	vector, err := client.EmbedQuery(context.Background(), "county budget")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vector) != 3 || vector[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", vector)
	}
}

func TestEmbedQueryEmptyResultErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "nomic-embed-text")
	if _, err := client.EmbedQuery(context.Background(), "county budget"); err == nil {
		t.Fatalf("expected error for empty embeddings")
	}
}
