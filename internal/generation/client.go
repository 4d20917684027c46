package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable marks a transport-level failure reaching the generation
// service, as opposed to a bad response. Callers use it to produce a
// distinct "service unavailable" answer instead of a generic error.
var ErrUnavailable = errors.New("generation service unavailable")

// Client calls an Ollama-compatible text-generation HTTP API.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
}

func NewClient(baseURL, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate produces a completion for the prompt using the configured model.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.GenerateWithModel(ctx, c.model, prompt)
}

// GenerateWithModel produces a completion using an explicit model, used by
// the metadata enrichment path which runs a smaller model on a short budget.
func (c *Client) GenerateWithModel(ctx context.Context, model, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{Model: model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("generate: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("generate: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		var opErr *net.OpError
		var dnsErr *net.DNSError
		if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", fmt.Errorf("generate: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("generate: status %d: %s", res.StatusCode, string(body))
	}

	var out generateResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("generate: decode response: %w", err)
	}
	return out.Response, nil
}

// BuildRAGPrompt frames the user question with retrieved context documents.
func BuildRAGPrompt(query string, docs []string) string {
	var b strings.Builder
	b.WriteString("You are a helpful AI assistant with access to a knowledge base. " +
		"Use the provided context to answer the user's question. " +
		"If the context doesn't contain relevant information, say so clearly.\n\nContext:\n")

	if len(docs) == 0 {
		b.WriteString("No relevant documents found.\n")
	}
	for i, doc := range docs {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "Document %d:\n%s\n\n", i+1, doc)
	}

	fmt.Fprintf(&b, "\nUser Question: %s\n\n", query)
	b.WriteString("Please provide a clear, accurate answer based on the context above. " +
		"If the context is insufficient, say \"I don't have enough information to answer that question.\"\n\nAnswer:")
	return b.String()
}
