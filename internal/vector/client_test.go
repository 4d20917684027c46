package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSearchTextFiltersDistance(t *testing.T) {
	var gotReq map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query_text" {
			t.Errorf("path = %q, want /query_text", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := map[string]any{
			"status": "success",
			"results": []map[string]any{
				{"id": "near", "document": "close match", "metadata": map[string]any{"domain": "tech"}, "distance": 0.2},
				{"id": "edge", "document": "borderline", "metadata": nil, "distance": 0.5},
				{"id": "far", "document": "unrelated", "metadata": nil, "distance": 0.8},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, 0.6, 0.5)
	results, err := c.SearchText(context.Background(), "query", SearchOptions{TopK: 3, Domain: "tech"})
	if err != nil {
		t.Fatalf("SearchText() error = %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 (distance 0.8 dropped)", len(results))
	}
	if results[0].ID != "near" || results[1].ID != "edge" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Text != "close match" {
		t.Fatalf("text = %q", results[0].Text)
	}

	filters, _ := gotReq["filters"].(map[string]any)
	if filters["min_confidence"] != 0.6 {
		t.Fatalf("min_confidence filter = %v, want 0.6", filters["min_confidence"])
	}
	if filters["domain"] != "tech" {
		t.Fatalf("domain filter = %v, want tech", filters["domain"])
	}
	if gotReq["top_k"] != float64(3) {
		t.Fatalf("top_k = %v, want 3", gotReq["top_k"])
	}
}

func TestSearchVectorRejectsEmpty(t *testing.T) {
	c := NewClient("http://localhost:0", time.Second, 0.6, 0.5)
	if _, err := c.SearchVector(context.Background(), nil, SearchOptions{}); err == nil {
		t.Fatalf("empty vector should be rejected before any network call")
	}
}

func TestInsertTextReturnsID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/add_text" {
			t.Errorf("path = %q, want /add_text", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "id": "doc-42"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, 0.6, 0.5)
	id, err := c.InsertText(context.Background(), "hello", map[string]any{"source": "user"})
	if err != nil {
		t.Fatalf("InsertText() error = %v", err)
	}
	if id != "doc-42" {
		t.Fatalf("id = %q, want doc-42", id)
	}

	if _, err := c.InsertText(context.Background(), "  ", nil); err == nil {
		t.Fatalf("blank text should be rejected")
	}
}

func TestFetchMissingRecord(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/vectors/known":
			_ = json.NewEncoder(w).Encode(Record{ID: "known", Text: "stored", Metadata: map[string]any{"status": "pending"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, 0.6, 0.5)

	rec, found, err := c.Fetch(context.Background(), "known")
	if err != nil || !found {
		t.Fatalf("Fetch(known) = %v, found=%v", err, found)
	}
	if rec.Text != "stored" {
		t.Fatalf("record = %+v", rec)
	}

	_, found, err = c.Fetch(context.Background(), "missing")
	if err != nil {
		t.Fatalf("missing record must not be an error, got %v", err)
	}
	if found {
		t.Fatalf("missing record reported as found")
	}
}

func TestUpdateMetadata(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, 0.6, 0.5)
	err := c.UpdateMetadata(context.Background(), "doc-1", map[string]any{"status": "completed"})
	if err != nil {
		t.Fatalf("UpdateMetadata() error = %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/vectors/doc-1/metadata" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	meta, _ := gotBody["metadata"].(map[string]any)
	if meta["status"] != "completed" {
		t.Fatalf("body = %+v", gotBody)
	}
}

func TestSearchTextRetriesRetryableStatus(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"results": []map[string]any{
				{"id": "r1", "document": "doc", "metadata": nil, "distance": 0.1},
			},
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, 0.6, 0.5)
	results, err := c.SearchText(context.Background(), "q", SearchOptions{})
	if err != nil {
		t.Fatalf("SearchText() error = %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
}

func TestInsertDoesNotRetry(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, 0.6, 0.5)
	if _, err := c.InsertText(context.Background(), "text", nil); err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (writes never retry)", attempts)
	}
}

func TestSimilarityScale(t *testing.T) {
	cases := []struct {
		distance float64
		want     float64
	}{
		{0, 100},
		{0.25, 75},
		{0.5, 50},
		{1, 0},
		{1.5, 0},
		{-0.2, 100},
	}
	for _, c := range cases {
		if got := Similarity(c.distance); got != c.want {
			t.Fatalf("Similarity(%v) = %v, want %v", c.distance, got, c.want)
		}
	}
}
