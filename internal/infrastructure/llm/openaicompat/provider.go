package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"datanav/internal/core/ports"
	"datanav/internal/infrastructure/resilience"
)

// Client speaks the OpenAI chat-completions dialect. One Client serves any
// hosted provider that exposes it (OpenAI, OpenRouter, Together, vLLM); the
// base URL and chain name come from configuration.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Config struct {
	// Name identifies this provider in the fallback chain.
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration

	ResilienceExecutor *resilience.Executor
}

func New(cfg Config) *Client {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "openai-compat"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		name:       name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		executor:   cfg.ResilienceExecutor,
	}
}

func (c *Client) Name() string {
	return c.name
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *Client) Complete(ctx context.Context, prompt, modelID string) (string, error) {
	reqBody := chatRequest{
		Model:    modelID,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}

	var response chatResponse
	err := c.execute(ctx, c.name+".chat", func(ctx context.Context) error {
		response = chatResponse{}
		resp, err := c.post(ctx, reqBody)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(&response)
	})
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices in completion", c.name)
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

func (c *Client) CompleteStream(ctx context.Context, prompt, modelID string) (<-chan ports.StreamChunk, error) {
	reqBody := chatRequest{
		Model:    modelID,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   true,
	}

	resp, err := c.post(ctx, reqBody)
	if err != nil {
		return nil, wrapProviderError(c.name+".chat", err)
	}

	out := make(chan ports.StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var delta chatResponse
			if err := json.Unmarshal([]byte(data), &delta); err != nil {
				sendChunk(ctx, out, ports.StreamChunk{Err: fmt.Errorf("decode stream delta: %w", err)})
				return
			}
			if len(delta.Choices) == 0 {
				continue
			}
			if content := delta.Choices[0].Delta.Content; content != "" {
				if !sendChunk(ctx, out, ports.StreamChunk{Content: content}) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			sendChunk(ctx, out, ports.StreamChunk{Err: wrapTemporaryIfNeeded(c.name+".stream", err)})
		}
	}()
	return out, nil
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyUpstreamError)
	} else {
		err = call(ctx)
	}
	return wrapProviderError(operation, err)
}

// post returns the response with its body open on success.
func (c *Client) post(ctx context.Context, reqBody chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s chat request: %w", c.name, err)
	}

	if resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		_ = resp.Body.Close()
		return nil, &HTTPStatusError{
			Operation:  c.name + ".chat",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(bytes.TrimSpace(errBody)),
		}
	}
	return resp, nil
}

func sendChunk(ctx context.Context, out chan<- ports.StreamChunk, chunk ports.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
