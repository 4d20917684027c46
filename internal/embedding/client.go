package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Client calls the external embedding service. The vector dimension is
// locked at the first successful call; every subsequent vector must match it
// exactly or the operation fails.
type Client struct {
	baseURL string
	http    *http.Client

	mu  sync.Mutex
	dim int
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Items []struct {
		Vector []float64 `json:"vector"`
	} `json:"items"`
}

// Embed converts a single text to an embedding vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	payload, err := json.Marshal(embedRequest{Texts: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("embed: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("embed: status %d: %s", res.StatusCode, string(body))
	}

	var out embedResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embed: decode response: %w", err)
	}
	if len(out.Items) == 0 || len(out.Items[0].Vector) == 0 {
		return nil, fmt.Errorf("embed: service returned no vectors")
	}

	vec := out.Items[0].Vector

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dim == 0 {
		c.dim = len(vec)
	} else if len(vec) != c.dim {
		return nil, fmt.Errorf("embed: dimension mismatch: expected %d, got %d", c.dim, len(vec))
	}
	return vec, nil
}

// Dimension returns the locked vector dimension, or 0 before the first
// successful call.
func (c *Client) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dim
}
