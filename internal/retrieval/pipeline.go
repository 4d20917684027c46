package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/engram-labs/engram/internal/embedding"
	"github.com/engram-labs/engram/internal/enrich"
	"github.com/engram-labs/engram/internal/generation"
	"github.com/engram-labs/engram/internal/observability"
	"github.com/engram-labs/engram/internal/vector"
)

// Answer is the result of one full chat-pipeline run.
type Answer struct {
	Query          string    `json:"query"`
	SessionID      string    `json:"session_id,omitempty"`
	Text           string    `json:"answer"`
	Snippets       []Snippet `json:"retrieved"`
	ShortTermCount int       `json:"short_term_count"`
	LongTermCount  int       `json:"long_term_count"`
	EmbeddingDim   int       `json:"embedding_dim,omitempty"`
	StoredID       string    `json:"stored_id,omitempty"`
}

// Pipeline orchestrates one chat turn: embed the message, store it as a
// long-term memory, retrieve fused context, and generate an answer. Every
// collaborator failure is caught at its call site and degrades the step
// rather than failing the turn; there is deliberately no outer deadline
// around the whole pipeline beyond each collaborator's own timeout.
type Pipeline struct {
	engine   *Engine
	embedder *embedding.Client
	index    *vector.Client
	gen      *generation.Client
	enricher *enrich.Enricher
	metrics  *observability.Metrics
	window   *observability.StageWindow
}

func NewPipeline(
	engine *Engine,
	embedder *embedding.Client,
	index *vector.Client,
	gen *generation.Client,
	enricher *enrich.Enricher,
	metrics *observability.Metrics,
	window *observability.StageWindow,
) *Pipeline {
	return &Pipeline{
		engine:   engine,
		embedder: embedder,
		index:    index,
		gen:      gen,
		enricher: enricher,
		metrics:  metrics,
		window:   window,
	}
}

// Chat runs the full pipeline for one user message.
func (p *Pipeline) Chat(ctx context.Context, message, sessionID string, topK int) Answer {
	started := time.Now()

	ans := Answer{Query: message, SessionID: sessionID}

	// Embed in the orchestrator so the message can be stored as an external
	// vector; on failure fall back to text insert, which embeds index-side.
	var vec []float64
	if p.embedder != nil {
		stageStart := time.Now()
		v, err := p.embedder.Embed(ctx, message)
		p.observeStage(observability.StageEmbed, stageStart)
		if err != nil {
			log.Printf("pipeline: embed failed: %v", err)
			p.countError("embedding", "embed")
			p.indicate("embed_fallback")
		} else {
			vec = v
			ans.EmbeddingDim = len(v)
		}
	}

	ans.StoredID = p.storeMessage(ctx, message, sessionID, vec)

	stageStart := time.Now()
	res := p.engine.Retrieve(ctx, message, sessionID, vector.SearchOptions{TopK: topK})
	p.observeStage(observability.StageRetrieve, stageStart)
	ans.Snippets = res.Snippets
	ans.ShortTermCount = res.ShortTermCount
	ans.LongTermCount = res.LongTermCount

	ans.Text = p.compose(ctx, message, res.Snippets)

	if p.metrics != nil {
		p.metrics.ObserveChatLatency(time.Since(started))
	}
	p.observeStage(observability.StageTotal, started)
	return ans
}

// StoreMemory stores a document directly into long-term memory and
// dispatches background metadata enrichment.
func (p *Pipeline) StoreMemory(ctx context.Context, text, sessionID string) (string, error) {
	metadata := map[string]any{
		"source": "user",
		"status": "pending",
	}
	if sessionID != "" {
		metadata["session_id"] = sessionID
	}

	id, err := p.index.InsertText(ctx, text, metadata)
	if err != nil {
		p.countError("vector_index", "insert")
		return "", fmt.Errorf("store memory: %w", err)
	}
	if p.enricher != nil {
		p.enricher.Dispatch(id, text)
	}
	return id, nil
}

// Search exposes fused retrieval without answer generation.
func (p *Pipeline) Search(ctx context.Context, query, sessionID string, opts vector.SearchOptions) Result {
	return p.engine.Retrieve(ctx, query, sessionID, opts)
}

// storeMessage persists the user message as a long-term memory. Failure is
// logged and swallowed: losing one memory write degrades future recall but
// must not fail the chat turn.
func (p *Pipeline) storeMessage(ctx context.Context, message, sessionID string, vec []float64) string {
	metadata := map[string]any{
		"text":   message,
		"source": "orchestrator",
		"status": "pending",
	}
	if sessionID != "" {
		metadata["session_id"] = sessionID
	}

	stageStart := time.Now()
	defer func() { p.observeStage(observability.StageStore, stageStart) }()

	var (
		id  string
		err error
	)
	if len(vec) > 0 {
		id, err = p.index.InsertVector(ctx, vec, metadata)
	} else {
		id, err = p.index.InsertText(ctx, message, metadata)
	}
	if err != nil {
		log.Printf("pipeline: store message failed: %v", err)
		p.countError("vector_index", "insert")
		return ""
	}
	if p.enricher != nil {
		p.enricher.Dispatch(id, message)
	}
	return id
}

// compose turns retrieved context into an answer via the text generator,
// with distinct fallbacks for an unreachable service versus a failed call.
func (p *Pipeline) compose(ctx context.Context, query string, snippets []Snippet) string {
	if p.gen == nil {
		return fallbackAnswer(snippets, query)
	}

	docs := make([]string, 0, len(snippets))
	for _, s := range snippets {
		docs = append(docs, s.Text)
	}

	stageStart := time.Now()
	text, err := p.gen.Generate(ctx, generation.BuildRAGPrompt(query, docs))
	p.observeStage(observability.StageGenerate, stageStart)
	if err != nil {
		p.countError("generation", "generate")
		if errors.Is(err, generation.ErrUnavailable) {
			log.Printf("pipeline: generation unavailable: %v", err)
			p.indicate("generation_unavailable")
			return "The language model service is currently unavailable. Please try again shortly."
		}
		log.Printf("pipeline: generation failed: %v", err)
		p.indicate("generation_fallback")
		return fallbackAnswer(snippets, query)
	}
	return text
}

func fallbackAnswer(snippets []Snippet, query string) string {
	if len(snippets) == 0 {
		return fmt.Sprintf("I don't have relevant memories for: %s", query)
	}
	out := "Relevant memories:\n"
	for i, s := range snippets {
		if i >= 3 {
			break
		}
		if i > 0 {
			out += "\n---\n"
		}
		out += s.Text
	}
	return out
}

func (p *Pipeline) observeStage(stage string, started time.Time) {
	if p.window != nil {
		p.window.Observe(stage, time.Since(started))
	}
}

func (p *Pipeline) indicate(name string) {
	if p.window != nil {
		p.window.ObserveIndicator(name)
	}
}

func (p *Pipeline) countError(collaborator, op string) {
	if p.metrics != nil {
		p.metrics.CollaboratorErrors.WithLabelValues(collaborator, op).Inc()
	}
}
