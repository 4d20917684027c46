package retrieval

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/engram-labs/engram/internal/observability"
	"github.com/engram-labs/engram/internal/session"
	"github.com/engram-labs/engram/internal/vector"
)

// Snippet sources on the common 0-100 relevance scale.
const (
	SourceShortTerm = "short_term_memory"
	SourceLongTerm  = "long_term_memory"

	// Exact in-session matches are pinned at the maximum score: recent
	// conversational context is always at least as relevant as a
	// semantically similar but older memory.
	shortTermScore = 100
)

// Snippet is one unit of retrieved context, constructed fresh per query.
type Snippet struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
	Source   string         `json:"source"`
}

// Result carries the fused ranking plus per-source counts for observability.
type Result struct {
	Snippets       []Snippet `json:"snippets"`
	ShortTermCount int       `json:"short_term_count"`
	LongTermCount  int       `json:"long_term_count"`
}

// ShortTermSearcher is the session store's exact-text search.
type ShortTermSearcher interface {
	Search(sessionID, query string) []session.Turn
}

// LongTermSearcher is the vector index facade's filtered similarity search.
type LongTermSearcher interface {
	SearchText(ctx context.Context, query string, opts vector.SearchOptions) ([]vector.Result, error)
}

// Engine fuses short-term exact-text matches with long-term similarity
// matches into one ranked result set.
type Engine struct {
	shortTerm ShortTermSearcher
	longTerm  LongTermSearcher
	metrics   *observability.Metrics
}

func NewEngine(shortTerm ShortTermSearcher, longTerm LongTermSearcher, metrics *observability.Metrics) *Engine {
	return &Engine{shortTerm: shortTerm, longTerm: longTerm, metrics: metrics}
}

// Retrieve runs both passes and merges: short-term matches score a fixed
// 100, long-term scores derive from index distance, then a stable
// descending sort and truncation to top-k. Domain and entity-type filters in
// opts apply to the long-term pass only. A failing long-term search degrades
// to short-term results alone, and vice versa.
func (e *Engine) Retrieve(ctx context.Context, query, sessionID string, opts vector.SearchOptions) Result {
	topK := opts.TopK
	if topK <= 0 {
		topK = 5
		opts.TopK = topK
	}

	var snippets []Snippet

	if sessionID != "" && e.shortTerm != nil {
		for i, turn := range e.shortTerm.Search(sessionID, query) {
			snippets = append(snippets, Snippet{
				ID:   fmt.Sprintf("%s#%d", sessionID, i),
				Text: turn.Text,
				Metadata: map[string]any{
					"role":      string(turn.Role),
					"timestamp": turn.Timestamp,
					"source":    SourceShortTerm,
				},
				Score:  shortTermScore,
				Source: SourceShortTerm,
			})
		}
	}
	if e.longTerm != nil {
		matches, err := e.longTerm.SearchText(ctx, query, opts)
		if err != nil {
			log.Printf("retrieval: long-term search failed: %v", err)
			if e.metrics != nil {
				e.metrics.CollaboratorErrors.WithLabelValues("vector_index", "search").Inc()
			}
		}
		for _, m := range matches {
			snippets = append(snippets, Snippet{
				ID:       m.ID,
				Text:     m.Text,
				Metadata: m.Metadata,
				Score:    vector.Similarity(m.Distance),
				Source:   SourceLongTerm,
			})
		}
	}

	// Stable sort keeps original order on ties, so short-term matches stay
	// ahead of equally scored long-term ones.
	sort.SliceStable(snippets, func(i, j int) bool {
		return snippets[i].Score > snippets[j].Score
	})
	if len(snippets) > topK {
		snippets = snippets[:topK]
	}

	finalShort, finalLong := 0, 0
	for _, s := range snippets {
		if s.Source == SourceShortTerm {
			finalShort++
		} else {
			finalLong++
		}
	}
	if e.metrics != nil {
		e.metrics.RetrievalResults.WithLabelValues(SourceShortTerm).Add(float64(finalShort))
		e.metrics.RetrievalResults.WithLabelValues(SourceLongTerm).Add(float64(finalLong))
	}

	return Result{
		Snippets:       snippets,
		ShortTermCount: finalShort,
		LongTermCount:  finalLong,
	}
}
