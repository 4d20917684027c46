package app

import (
	"context"
	"fmt"

	"github.com/engram-labs/engram/internal/archive"
	"github.com/engram-labs/engram/internal/config"
	"github.com/engram-labs/engram/internal/embedding"
	"github.com/engram-labs/engram/internal/enrich"
	"github.com/engram-labs/engram/internal/generation"
	"github.com/engram-labs/engram/internal/httpapi"
	"github.com/engram-labs/engram/internal/observability"
	"github.com/engram-labs/engram/internal/retrieval"
	"github.com/engram-labs/engram/internal/session"
	"github.com/engram-labs/engram/internal/vector"
)

// BuildResult holds the fully wired service graph.
type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Pipeline *retrieval.Pipeline
	Enricher *enrich.Enricher
	Metrics  *observability.Metrics
	Window   *observability.StageWindow

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

// Build assembles every component from configuration: collaborator clients,
// the session manager with its summary sink and archiver, the fusion engine
// and the chat pipeline behind the HTTP API.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	window := observability.NewStageWindow(0)

	archiveStore, err := archive.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("archive store init failed: %w", err)
	}

	embedder := embedding.NewClient(cfg.EmbeddingServiceURL, cfg.EmbeddingTimeout)
	index := vector.NewClient(cfg.VectorServiceURL, cfg.VectorTimeout, cfg.MinConfidence, cfg.MaxDistance)
	gen := generation.NewClient(cfg.GenerationURL, cfg.GenerationModel, cfg.GenerationTimeout)

	// The enrichment path runs a smaller model on a tight budget, so it gets
	// its own client with its own timeout.
	enrichGen := generation.NewClient(cfg.GenerationURL, cfg.EnrichmentModel, cfg.EnrichmentTimeout)
	enricher := enrich.New(enrichGen, index, cfg.EnrichmentModel, cfg.EnrichmentTimeout, metrics)

	sessions := session.NewManager(session.Options{
		Timeout:              cfg.SessionTimeout,
		MaxTurns:             cfg.MaxContextTurns,
		MaxChars:             cfg.MaxContextChars,
		RelatednessThreshold: cfg.RelatednessThreshold,
	})
	sessions.SetSummarySink(countingSink{
		sink:    vector.NewSummaryWriter(index),
		metrics: metrics,
	})
	sessions.SetArchiver(archive.NewSessionArchiver(archiveStore))

	engine := retrieval.NewEngine(sessions, index, metrics)
	pipeline := retrieval.NewPipeline(engine, embedder, index, gen, enricher, metrics, window)

	api := httpapi.New(cfg, sessions, pipeline, metrics, window)

	cleanup := func() error {
		enricher.Wait()
		return archiveStore.Close()
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Pipeline: pipeline,
		Enricher: enricher,
		Metrics:  metrics,
		Window:   window,
		Cleanup:  cleanup,
	}, nil
}

// countingSink wraps the summary writer so successful handoffs show up in the
// metrics without the session package knowing about Prometheus.
type countingSink struct {
	sink    session.SummarySink
	metrics *observability.Metrics
}

func (c countingSink) StoreSummary(ctx context.Context, sessionID, summary string, turnCount int) error {
	if err := c.sink.StoreSummary(ctx, sessionID, summary, turnCount); err != nil {
		return err
	}
	c.metrics.SummariesStored.Inc()
	return nil
}
