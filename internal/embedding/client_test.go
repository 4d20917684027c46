package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func embedServer(t *testing.T, vectors map[string][]float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("path = %q, want /embed", r.URL.Path)
		}
		var req struct {
			Texts []string `json:"texts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Texts) != 1 {
			t.Errorf("bad request: %v %v", err, req)
		}
		vec := vectors[req.Texts[0]]
		resp := map[string]any{
			"items": []map[string]any{{"vector": vec}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbedLocksDimension(t *testing.T) {
	ts := embedServer(t, map[string][]float64{
		"hello": {0.1, 0.2, 0.3},
		"world": {0.4, 0.5, 0.6},
		"bad":   {0.7, 0.8},
	})
	defer ts.Close()

	c := NewClient(ts.URL, time.Second)
	if c.Dimension() != 0 {
		t.Fatalf("dimension before first call = %d, want 0", c.Dimension())
	}

	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 3 || c.Dimension() != 3 {
		t.Fatalf("vector len = %d, dimension = %d, want 3", len(vec), c.Dimension())
	}

	if _, err := c.Embed(context.Background(), "world"); err != nil {
		t.Fatalf("matching dimension rejected: %v", err)
	}

	if _, err := c.Embed(context.Background(), "bad"); err == nil {
		t.Fatalf("dimension mismatch should fail")
	}
	if c.Dimension() != 3 {
		t.Fatalf("mismatch must not move the locked dimension, got %d", c.Dimension())
	}
}

func TestEmbedEmptyResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []any{}})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second)
	if _, err := c.Embed(context.Background(), "hello"); err == nil {
		t.Fatalf("empty item list should be an error")
	}
}

func TestEmbedUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second)
	if _, err := c.Embed(context.Background(), "hello"); err == nil {
		t.Fatalf("5xx should be an error")
	}
	if c.Dimension() != 0 {
		t.Fatalf("failed call must not lock a dimension")
	}
}
