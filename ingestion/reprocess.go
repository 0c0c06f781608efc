package ingestion

import "context"

// ResetForReprocessing clears derived fields via Store, then enqueues a
// fresh job. Facet cache is deliberately NOT invalidated here; it is only
// invalidated when the reprocessing run actually completes (spec §4.6).
func (e *Enqueuer) ResetForReprocessing(ctx context.Context, documentID int64) error {
	if err := e.st.ResetForReprocessing(ctx, documentID); err != nil {
		return err
	}
	return e.ReEnqueue(ctx, documentID, 0)
}
