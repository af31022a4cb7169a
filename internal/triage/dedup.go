package triage

import (
	"context"
	"fmt"
	"time"
)

// dedupe is the first stage: every batch finding is compared against the same
// agent's earlier findings. Matches at or above the threshold are marked
// already_reported and drop out of the pipeline. Non-duplicates join the
// candidate set so a batch self-deduplicates in submission order before
// anything else sees it.
func (e *Engine) dedupe(ctx context.Context, batch, priors []*Finding, apply ApplyFunc, stats *RunStats) error {
	// Superseded findings do not participate further.
	known := make([]*Finding, 0, len(priors)+len(batch))
	for _, p := range priors {
		if p.Status != StatusAlreadyReported {
			known = append(known, p)
		}
	}

	for _, f := range batch {
		match, score, explanation := e.bestMatch(ctx, "dedup", f, known)
		if match == nil {
			known = append(known, f)
			continue
		}

		f.Status = StatusAlreadyReported
		f.SimilarTo = match.FindingID
		f.EvaluationComment = fmt.Sprintf(
			"Already reported by the same agent (original: %q). %s",
			match.FindingID, explanation,
		)
		f.UpdatedAt = time.Now().UTC()

		if err := apply(ctx, f); err != nil {
			return fmt.Errorf("persist duplicate %s: %w", f.FindingID, err)
		}
		stats.Duplicates++

		e.logger.Info(ctx, "finding marked already_reported",
			"finding", f.FindingID,
			"duplicate_of", match.FindingID,
			"score", score,
		)
	}
	return nil
}
