package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/engram-labs/engram/internal/reliability"
)

// Result is one nearest-neighbor candidate returned by a filtered search.
// Distance semantics: smaller is more similar.
type Result struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Distance float64        `json:"distance"`
}

// Record is a stored document fetched by id.
type Record struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// SearchOptions narrows a filtered search. Zero-valued filters are omitted;
// the minimum-confidence filter is always applied index-side.
type SearchOptions struct {
	TopK       int
	Domain     string
	EntityType string
}

// Client is the facade over the external vector index service. It forwards
// inserts and nearest-neighbor queries, pushes equality and range predicates
// to the index, and applies the maximum-distance threshold client-side,
// since a distance cutoff is not a predicate the index engine supports.
type Client struct {
	baseURL       string
	http          *http.Client
	minConfidence float64
	maxDistance   float64
}

func NewClient(baseURL string, timeout time.Duration, minConfidence, maxDistance float64) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:          &http.Client{Timeout: timeout},
		minConfidence: minConfidence,
		maxDistance:   maxDistance,
	}
}

type insertTextRequest struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type insertVectorRequest struct {
	Vector   []float64      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type insertResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

type searchFilters struct {
	Domain        string  `json:"domain,omitempty"`
	EntityType    string  `json:"entity_type,omitempty"`
	MinConfidence float64 `json:"min_confidence"`
}

type queryTextRequest struct {
	Query   string        `json:"query"`
	TopK    int           `json:"top_k"`
	Filters searchFilters `json:"filters"`
}

type queryVectorRequest struct {
	Vector  []float64     `json:"vector"`
	TopK    int           `json:"top_k"`
	Filters searchFilters `json:"filters"`
}

type queryResponse struct {
	Status  string `json:"status"`
	Results []struct {
		ID       string         `json:"id"`
		Document string         `json:"document"`
		Metadata map[string]any `json:"metadata"`
		Distance float64        `json:"distance"`
	} `json:"results"`
}

// InsertText stores a raw document; the index embeds it on its side.
func (c *Client) InsertText(ctx context.Context, text string, metadata map[string]any) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("insert text: empty text")
	}
	var out insertResponse
	if err := c.post(ctx, "/add_text", insertTextRequest{Text: text, Metadata: metadata}, &out); err != nil {
		return "", fmt.Errorf("insert text: %w", err)
	}
	return out.ID, nil
}

// InsertVector stores an externally computed embedding with its metadata.
func (c *Client) InsertVector(ctx context.Context, vec []float64, metadata map[string]any) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("insert vector: empty vector")
	}
	var out insertResponse
	if err := c.post(ctx, "/add_vector", insertVectorRequest{Vector: vec, Metadata: metadata}, &out); err != nil {
		return "", fmt.Errorf("insert vector: %w", err)
	}
	return out.ID, nil
}

// Fetch retrieves a stored record. A missing id is an empty result, not an
// error.
func (c *Client) Fetch(ctx context.Context, id string) (Record, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/vectors/"+id, nil)
	if err != nil {
		return Record{}, false, fmt.Errorf("fetch: create request: %w", err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return Record{}, false, fmt.Errorf("fetch: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return Record{}, false, nil
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Record{}, false, fmt.Errorf("fetch: status %d: %s", res.StatusCode, string(body))
	}

	var rec Record
	if err := json.NewDecoder(res.Body).Decode(&rec); err != nil {
		return Record{}, false, fmt.Errorf("fetch: decode response: %w", err)
	}
	return rec, true, nil
}

// UpdateMetadata replaces the stored metadata of a record.
func (c *Client) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error {
	payload, err := json.Marshal(map[string]any{"metadata": metadata})
	if err != nil {
		return fmt.Errorf("update metadata: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/vectors/"+id+"/metadata", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("update metadata: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("update metadata: status %d: %s", res.StatusCode, string(body))
	}
	return nil
}

// SearchText runs a filtered nearest-neighbor query from raw text; the index
// embeds the query itself.
func (c *Client) SearchText(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	req := queryTextRequest{
		Query: query,
		TopK:  normalizeTopK(opts.TopK),
		Filters: searchFilters{
			Domain:        opts.Domain,
			EntityType:    opts.EntityType,
			MinConfidence: c.minConfidence,
		},
	}
	var out queryResponse
	if err := c.postQuery(ctx, "/query_text", req, &out); err != nil {
		return nil, fmt.Errorf("search text: %w", err)
	}
	return c.filterByDistance(out), nil
}

// SearchVector runs a filtered nearest-neighbor query from an embedding.
func (c *Client) SearchVector(ctx context.Context, vec []float64, opts SearchOptions) ([]Result, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("search vector: empty vector")
	}
	req := queryVectorRequest{
		Vector: vec,
		TopK:   normalizeTopK(opts.TopK),
		Filters: searchFilters{
			Domain:        opts.Domain,
			EntityType:    opts.EntityType,
			MinConfidence: c.minConfidence,
		},
	}
	var out queryResponse
	if err := c.postQuery(ctx, "/query_vector", req, &out); err != nil {
		return nil, fmt.Errorf("search vector: %w", err)
	}
	return c.filterByDistance(out), nil
}

// filterByDistance drops candidates past the maximum-distance threshold.
// Fewer than top_k survivors is a normal outcome.
func (c *Client) filterByDistance(resp queryResponse) []Result {
	results := make([]Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Distance > c.maxDistance {
			continue
		}
		results = append(results, Result{
			ID:       r.ID,
			Text:     r.Document,
			Metadata: r.Metadata,
			Distance: r.Distance,
		})
	}
	return results
}

const (
	queryRetries     = 2
	retryBackoffBase = 100 * time.Millisecond
	retryBackoffCap  = time.Second
)

// postQuery retries idempotent query requests on transport failures and
// retryable statuses with capped exponential backoff. Inserts never retry:
// a duplicated write is worse than a lost query.
func (c *Client) postQuery(ctx context.Context, path string, in, out any) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = c.post(ctx, path, in, out)
		if err == nil || attempt >= queryRetries || !retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reliability.ExponentialBackoff(attempt, retryBackoffBase, retryBackoffCap)):
		}
	}
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return reliability.IsRetryableHTTPStatus(se.code)
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return false
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &statusError{code: res.StatusCode, body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func normalizeTopK(k int) int {
	if k <= 0 {
		return 5
	}
	return k
}

// Similarity converts an index distance to the common 0-100 relevance scale
// used by retrieval fusion. Monotonic decreasing in distance, clamped.
func Similarity(distance float64) float64 {
	s := 100 * (1 - distance)
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
