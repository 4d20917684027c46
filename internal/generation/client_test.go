package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gemma3:1b" {
			t.Errorf("model = %q", req.Model)
		}
		if req.Stream {
			t.Errorf("stream must be false")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "the answer"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "gemma3:1b", time.Second)
	got, err := c.Generate(context.Background(), "question")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "the answer" {
		t.Fatalf("response = %q", got)
	}
}

func TestGenerateUnreachableIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	c := NewClient(url, "gemma3:1b", time.Second)
	_, err := c.Generate(context.Background(), "question")
	if err == nil {
		t.Fatalf("expected error against closed server")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestGenerateBadStatusIsNotUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "gemma3:1b", time.Second)
	_, err := c.Generate(context.Background(), "question")
	if err == nil {
		t.Fatalf("5xx should be an error")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatalf("a reachable but failing service is not ErrUnavailable: %v", err)
	}
}

func TestBuildRAGPrompt(t *testing.T) {
	docs := []string{"d1", "d2", "d3", "d4", "d5", "d6", "d7"}
	p := BuildRAGPrompt("what is go", docs)

	if !strings.Contains(p, "Document 5:\nd5") {
		t.Fatalf("prompt missing document 5")
	}
	if strings.Contains(p, "d6") {
		t.Fatalf("prompt must cap context at five documents")
	}
	if !strings.Contains(p, "User Question: what is go") {
		t.Fatalf("prompt missing question")
	}

	empty := BuildRAGPrompt("q", nil)
	if !strings.Contains(empty, "No relevant documents found.") {
		t.Fatalf("empty-context prompt = %q", empty)
	}
}
