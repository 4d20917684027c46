package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/engram-labs/engram/internal/generation"
	"github.com/engram-labs/engram/internal/observability"
	"github.com/engram-labs/engram/internal/vector"
)

const inferPrompt = `Return ONLY valid JSON.

Schema:
{
  "domain": one of ["movies","sports","tech","general"],
  "entity_type": one of ["fictional_character","real_person","organization","concept","unknown"],
  "entity_name": string or "unknown",
  "source": one of ["user","wiki","pdf","web","memory"],
  "confidence": number between 0 and 1
}

TEXT:
`

const maxExcerptLen = 1000

// Enricher generates metadata for freshly stored records in the background.
// Dispatch is fire-and-forget relative to the insert that created the
// record: readers may observe placeholder metadata until the task completes,
// an explicit eventual-consistency choice to keep ingestion latency low.
type Enricher struct {
	gen     *generation.Client
	index   *vector.Client
	model   string
	timeout time.Duration
	metrics *observability.Metrics

	wg sync.WaitGroup
}

func New(gen *generation.Client, index *vector.Client, model string, timeout time.Duration, metrics *observability.Metrics) *Enricher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Enricher{
		gen:     gen,
		index:   index,
		model:   model,
		timeout: timeout,
		metrics: metrics,
	}
}

// Dispatch schedules enrichment of a stored record. No ordering guarantee is
// given between dispatch and completion relative to other operations.
func (e *Enricher) Dispatch(recordID, text string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := e.Enrich(ctx, recordID, text); err != nil {
			log.Printf("enrich: %s failed: %v", recordID, err)
			if e.metrics != nil {
				e.metrics.EnrichmentOutcomes.WithLabelValues("failed").Inc()
			}
			return
		}
		if e.metrics != nil {
			e.metrics.EnrichmentOutcomes.WithLabelValues("completed").Inc()
		}
	}()
}

// Wait blocks until all dispatched enrichment tasks finish.
func (e *Enricher) Wait() {
	e.wg.Wait()
}

// Enrich infers metadata for the record text, merges it against what the
// index already holds by confidence vote, and writes the winner back.
func (e *Enricher) Enrich(ctx context.Context, recordID, text string) error {
	meta := e.Infer(ctx, text)

	existing, found, err := e.index.Fetch(ctx, recordID)
	if err != nil {
		return fmt.Errorf("fetch record: %w", err)
	}
	if !found {
		return fmt.Errorf("record %s not found", recordID)
	}

	old := metadataFromMap(existing.Metadata)
	merged := vector.MergeMetadata(old, meta)

	updated := existing.Metadata
	if updated == nil {
		updated = make(map[string]any)
	}
	updated["domain"] = merged.Domain
	updated["entity_type"] = merged.EntityType
	updated["entity_name"] = merged.EntityName
	updated["source"] = merged.Source
	updated["confidence"] = merged.Confidence
	updated["status"] = "completed"

	if err := e.index.UpdateMetadata(ctx, recordID, updated); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return nil
}

// Infer asks the enrichment model for metadata and validates the output.
// Any failure, malformed JSON or enum violation yields the fallback record
// wholesale; partial acceptance is never performed.
func (e *Enricher) Infer(ctx context.Context, text string) vector.RecordMetadata {
	excerpt := text
	if len(excerpt) > maxExcerptLen {
		excerpt = excerpt[:maxExcerptLen]
	}

	raw, err := e.gen.GenerateWithModel(ctx, e.model, inferPrompt+excerpt)
	if err != nil {
		log.Printf("enrich: infer failed, using fallback: %v", err)
		return vector.FallbackMetadata()
	}

	parsed, ok := parseMetadataJSON(raw)
	if !ok {
		return vector.FallbackMetadata()
	}
	return vector.ValidateMetadata(parsed)
}

// parseMetadataJSON decodes the model output, tolerating prose around the
// JSON object by retrying on the outermost brace span.
func parseMetadataJSON(raw string) (vector.RecordMetadata, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return vector.RecordMetadata{}, false
	}

	var meta vector.RecordMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err == nil {
		return meta, true
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return vector.RecordMetadata{}, false
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &meta); err != nil {
		return vector.RecordMetadata{}, false
	}
	return meta, true
}

func metadataFromMap(m map[string]any) vector.RecordMetadata {
	var meta vector.RecordMetadata
	if m == nil {
		return meta
	}
	if v, ok := m["domain"].(string); ok {
		meta.Domain = v
	}
	if v, ok := m["entity_type"].(string); ok {
		meta.EntityType = v
	}
	if v, ok := m["entity_name"].(string); ok {
		meta.EntityName = v
	}
	if v, ok := m["source"].(string); ok {
		meta.Source = v
	}
	switch v := m["confidence"].(type) {
	case float64:
		meta.Confidence = v
	case int:
		meta.Confidence = float64(v)
	}
	return meta
}
