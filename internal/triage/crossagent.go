package triage

import (
	"context"
	"fmt"
	"time"
)

const demotionNote = "Part of a similar findings group. Original evaluation maintained."

// compareAcrossAgents is the second stage: each finding still pending after
// dedup is compared against the other agents' authoritative findings. The
// best match at or above the threshold makes the new finding similar_valid,
// inheriting the match's category, category_id and evaluated severity. A
// matched unique_valid finding is demoted to similar_valid in the same write,
// the one retroactive status change in the system.
func (e *Engine) compareAcrossAgents(ctx context.Context, batch, others []*Finding, apply ApplyFunc, stats *RunStats) error {
	candidates := make([]*Finding, 0, len(others))
	for _, c := range others {
		if c.Comparable() {
			candidates = append(candidates, c)
		}
	}

	for _, f := range batch {
		if f.Status != StatusPending {
			continue
		}

		match, score, explanation := e.bestMatch(ctx, "cross_agent", f, candidates)
		if match == nil {
			continue
		}

		// Snapshot both records so a failed pair write leaves the in-memory
		// set consistent with what was persisted.
		fSnap, matchSnap := *f, *match
		now := time.Now().UTC()

		f.Status = StatusSimilarValid
		f.Category = match.Category
		f.CategoryID = match.CategoryID
		f.EvaluatedSeverity = match.EvaluatedSeverity
		f.EvaluationComment = fmt.Sprintf(
			"Similar to finding %q from agent %s. %s",
			match.FindingID, match.AgentID, explanation,
		)
		f.UpdatedAt = now

		// Link to the group origin, never to another similar_valid finding,
		// so the similar_to chain cannot form a cycle.
		if match.Status == StatusSimilarValid && match.SimilarTo != "" {
			f.SimilarTo = match.SimilarTo
		} else {
			f.SimilarTo = match.FindingID
		}

		if match.Status == StatusUniqueValid {
			match.Status = StatusSimilarValid
			if match.EvaluationComment != "" {
				match.EvaluationComment += "\n" + demotionNote
			} else {
				match.EvaluationComment = demotionNote
			}
			match.UpdatedAt = now

			if err := apply(ctx, f, match); err != nil {
				*f, *match = fSnap, matchSnap
				return fmt.Errorf("persist similar %s with demotion of %s: %w", f.FindingID, match.FindingID, err)
			}
			stats.Demoted++
			if e.hooks.OnDemotion != nil {
				e.hooks.OnDemotion()
			}
		} else {
			if err := apply(ctx, f); err != nil {
				*f = fSnap
				return fmt.Errorf("persist similar %s: %w", f.FindingID, err)
			}
		}
		stats.Similar++

		e.logger.Info(ctx, "finding marked similar_valid",
			"finding", f.FindingID,
			"similar_to", f.SimilarTo,
			"matched_agent", match.AgentID,
			"category_id", f.CategoryID,
			"score", score,
		)
	}
	return nil
}
