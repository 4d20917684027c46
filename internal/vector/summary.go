package vector

import (
	"context"
	"time"
)

// SummaryWriter hands finished session summaries to the index for durable
// long-term storage. It satisfies session.SummarySink.
type SummaryWriter struct {
	client *Client
}

func NewSummaryWriter(client *Client) *SummaryWriter {
	return &SummaryWriter{client: client}
}

func (w *SummaryWriter) StoreSummary(ctx context.Context, sessionID, summary string, turnCount int) error {
	_, err := w.client.InsertText(ctx, summary, map[string]any{
		"type":       "session_summary",
		"session_id": sessionID,
		"turn_count": turnCount,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
	return err
}
