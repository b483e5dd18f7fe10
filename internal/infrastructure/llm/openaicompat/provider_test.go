package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"datanav/internal/core/domain"
)

func testClient(baseURL string) *Client {
	return New(Config{Name: "openrouter", BaseURL: baseURL, APIKey: "sk-test"})
}

func TestCompleteSendsBearerAndReadsChoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "missing auth", http.StatusUnauthorized)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Model != "gpt-4o-mini" || len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			http.Error(w, "unexpected request shape", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" Ridership fell 12% [2]. "}}]}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	if client.Name() != "openrouter" {
		t.Fatalf("expected name openrouter, got %q", client.Name())
	}

	text, err := client.Complete(context.Background(), "question", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "Ridership fell 12% [2]." {
		t.Fatalf("unexpected completion: %q", text)
	}
}

func TestCompleteNoChoicesErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	if _, err := testClient(server.URL).Complete(context.Background(), "q", "m"); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestCompleteAuthFailureIsRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Complete(context.Background(), "q", "m")
	if !domain.IsKind(err, domain.ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}
}

func TestCompleteRateLimitIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Complete(context.Background(), "q", "m")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestCompleteStreamParsesSSE(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Ridership \"}}]}\n\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"fell 12% [2].\"}}]}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	stream, err := testClient(server.URL).CompleteStream(context.Background(), "q", "m")
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
	if got := b.String(); got != "Ridership fell 12% [2]." {
		t.Fatalf("unexpected streamed text: %q", got)
	}
}

func TestCompleteStreamBadPayloadSurfacesError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("data: not json\n\n"))
	}))
	defer server.Close()

	stream, err := testClient(server.URL).CompleteStream(context.Background(), "q", "m")
	if err != nil {
		t.Fatalf("CompleteStream() error = %v", err)
	}

	var lastErr error
	for chunk := range stream {
		lastErr = chunk.Err
	}
	if lastErr == nil {
		t.Fatalf("expected terminal error chunk")
	}
}
