package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"datanav/internal/core/ports"
	"datanav/internal/infrastructure/resilience"
)

// Client talks to a local Ollama daemon. It serves two roles: query
// embedding for vector retrieval, and answer generation as one provider in
// the fallback chain.
type Client struct {
	name       string
	baseURL    string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	// Name identifies this provider in the fallback chain. Defaults to
	// "ollama".
	Name               string
	HTTPTimeout        time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, embedModel string) *Client {
	return NewWithOptions(baseURL, embedModel, Options{})
}

func NewWithOptions(baseURL, embedModel string, options Options) *Client {
	name := strings.TrimSpace(options.Name)
	if name == "" {
		name = "ollama"
	}
	timeout := options.HTTPTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) Complete(ctx context.Context, prompt, modelID string) (string, error) {
	reqBody := map[string]any{
		"model":  modelID,
		"prompt": prompt,
		"stream": false,
	}

	var response struct {
		Response string `json:"response"`
	}
	err := c.execute(ctx, "ollama.generate", func(ctx context.Context) error {
		response.Response = ""
		return c.postJSON(ctx, "/api/generate", reqBody, &response, "generate")
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

// CompleteStream issues a streaming generate call. The stream itself is not
// retried; a broken stream surfaces on the last chunk and the caller decides
// whether another provider gets the prompt.
func (c *Client) CompleteStream(ctx context.Context, prompt, modelID string) (<-chan ports.StreamChunk, error) {
	reqBody := map[string]any{
		"model":  modelID,
		"prompt": prompt,
		"stream": true,
	}

	resp, err := c.postStream(ctx, "/api/generate", reqBody, "generate")
	if err != nil {
		return nil, wrapProviderError("ollama.generate", err)
	}

	out := make(chan ports.StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var delta struct {
				Response string `json:"response"`
				Done     bool   `json:"done"`
			}
			if err := json.Unmarshal([]byte(line), &delta); err != nil {
				sendChunk(ctx, out, ports.StreamChunk{Err: fmt.Errorf("decode stream delta: %w", err)})
				return
			}
			if delta.Response != "" {
				if !sendChunk(ctx, out, ports.StreamChunk{Content: delta.Response}) {
					return
				}
			}
			if delta.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			sendChunk(ctx, out, ports.StreamChunk{Err: wrapTemporaryIfNeeded("ollama.stream", err)})
		}
	}()
	return out, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]any{
		"model": c.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := c.execute(ctx, "ollama.embed", func(ctx context.Context) error {
		response.Embeddings = nil
		return c.postJSON(ctx, "/api/embed", reqBody, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding result")
	}
	return response.Embeddings[0], nil
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	return wrapProviderError(operation, err)
}

func sendChunk(ctx context.Context, out chan<- ports.StreamChunk, chunk ports.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
