package triage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fallbackCategory labels valid findings the oracle forgot to categorize.
const fallbackCategory = "Uncategorized"

// NewCategoryID mints a category group identifier guaranteed not to match
// any existing group.
func NewCategoryID() string {
	return "CAT-" + uuid.NewString()[:8]
}

type verdictResult struct {
	verdict  *Verdict
	err      error
	duration float64
}

// evaluatePending is the third stage: every finding still pending gets one
// verdict oracle call. Calls run concurrently (each finding is independent)
// but outcomes are applied sequentially in input order so persistence stays
// deterministic. An oracle failure leaves its finding pending for the next
// run and never blocks siblings.
func (e *Engine) evaluatePending(ctx context.Context, pending []*Finding, apply ApplyFunc) error {
	if len(pending) == 0 {
		return nil
	}

	results := make([]verdictResult, len(pending))
	sem := make(chan struct{}, e.evalWorkers)
	var wg sync.WaitGroup

	for i, f := range pending {
		wg.Add(1)
		go func(i int, f *Finding) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			v, err := e.verdict.Evaluate(ctx, f)
			results[i] = verdictResult{verdict: v, err: err, duration: time.Since(start).Seconds()}
		}(i, f)
	}
	wg.Wait()

	for i, f := range pending {
		r := results[i]
		now := time.Now().UTC()

		switch {
		case r.err != nil:
			// Transient failure: stay pending, retry on the next run. Never
			// default to a verdict.
			f.EvaluationComment = fmt.Sprintf("evaluation failed, will retry on next run: %v", r.err)
			f.UpdatedAt = now
			e.observeVerdict("error", r.duration)
			e.logger.Error(ctx, r.err, "verdict oracle call failed", "finding", f.FindingID)

		case r.verdict.Valid:
			f.Status = StatusUniqueValid
			f.Category = r.verdict.Category
			if strings.TrimSpace(f.Category) == "" {
				f.Category = fallbackCategory
			}
			f.CategoryID = NewCategoryID()
			if r.verdict.Severity == "" {
				f.EvaluatedSeverity = SeverityMedium
			} else {
				f.EvaluatedSeverity = NormalizeSeverity(string(r.verdict.Severity))
			}
			f.EvaluationComment = r.verdict.Comment
			f.UpdatedAt = now
			e.observeVerdict("valid", r.duration)

		default:
			f.Status = StatusDisputed
			f.Category = ""
			f.CategoryID = ""
			f.EvaluatedSeverity = ""
			f.EvaluationComment = r.verdict.Comment
			f.UpdatedAt = now
			e.observeVerdict("disputed", r.duration)
		}

		if err := apply(ctx, f); err != nil {
			return fmt.Errorf("persist evaluation of %s: %w", f.FindingID, err)
		}

		e.logger.Info(ctx, "finding evaluated",
			"finding", f.FindingID,
			"status", f.Status,
			"category", f.Category,
			"severity", f.EvaluatedSeverity,
		)
	}
	return nil
}

func (e *Engine) observeVerdict(outcome string, duration float64) {
	if e.hooks.OnVerdict != nil {
		e.hooks.OnVerdict(outcome, duration)
	}
}
