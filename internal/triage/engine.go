package triage

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

const (
	// DefaultThreshold is the inclusive similarity score at or above which two
	// findings are considered the same underlying issue.
	DefaultThreshold = 0.8

	// DefaultEvalWorkers bounds concurrent verdict oracle calls within the
	// evaluation stage.
	DefaultEvalWorkers = 4
)

// ApplyFunc persists one mutation unit. When called with two findings (a
// newly matched finding plus the demoted match) the write must be atomic:
// either both land or neither does.
type ApplyFunc func(ctx context.Context, findings ...*Finding) error

// EngineHooks are optional callbacks for instrumentation. Nil funcs are
// skipped.
type EngineHooks struct {
	// OnComparison fires per similarity oracle call with the stage name
	// ("dedup" or "cross_agent"), the returned score, the call duration in
	// seconds, and whether the call failed.
	OnComparison func(stage string, score, duration float64, failed bool)

	// OnVerdict fires per verdict oracle call with the outcome
	// ("valid", "disputed" or "error") and the call duration in seconds.
	OnVerdict func(outcome string, duration float64)

	// OnDemotion fires when a previously unique_valid finding is rewritten to
	// similar_valid by a later match.
	OnDemotion func()
}

// EngineConfig carries the tunables of the stage logic.
type EngineConfig struct {
	// Threshold is the inclusive similarity threshold in [0,1].
	Threshold float64

	// Profile selects the fields of the composite comparison text.
	Profile CompareProfile

	// EvalWorkers bounds concurrent verdict calls. Comparisons in the dedup
	// and cross-agent stages always run sequentially in submission order
	// because later comparisons depend on earlier status changes.
	EvalWorkers int
}

// Engine holds the pure stage logic of the triage pipeline. It never touches
// the store; persistence happens through the ApplyFunc the caller supplies.
type Engine struct {
	similarity  SimilarityOracle
	verdict     VerdictOracle
	threshold   float64
	profile     CompareProfile
	evalWorkers int
	logger      log.Logger
	hooks       EngineHooks
}

// NewEngine creates a triage engine with the given oracles and tunables.
func NewEngine(similarity SimilarityOracle, verdict VerdictOracle, cfg EngineConfig, logger log.Logger, hooks EngineHooks) *Engine {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultThreshold
	}
	if !cfg.Profile.Valid() {
		cfg.Profile = CompareFull
	}
	if cfg.EvalWorkers <= 0 {
		cfg.EvalWorkers = DefaultEvalWorkers
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{
		similarity:  similarity,
		verdict:     verdict,
		threshold:   cfg.Threshold,
		profile:     cfg.Profile,
		evalWorkers: cfg.EvalWorkers,
		logger:      logger,
		hooks:       hooks,
	}
}

// RunStats aggregates the outcome of one engine run. Duplicates + Similar +
// NewValid + Disputed + Pending equals the batch size; Demoted and Retried
// cover findings outside the batch.
type RunStats struct {
	Duplicates int
	Similar    int
	NewValid   int
	Disputed   int
	Pending    int
	Demoted    int
	Retried    int
}

// Run executes the three triage stages over one submission batch.
//
//   - batch: the agent's newly submitted findings, in submission order, all
//     pending and already persisted.
//   - priors: the same agent's previously stored findings for the task.
//   - others: all other agents' findings for the task (the engine filters
//     comparison candidates itself).
//   - retry: findings of any agent left pending by an earlier run's oracle
//     failure; they re-enter at the evaluation stage only.
//
// Mutations are persisted through apply as they are decided, so a mid-run
// failure leaves every already-applied decision durable and everything else
// pending. The returned stats reflect only applied mutations.
func (e *Engine) Run(ctx context.Context, batch, priors, others, retry []*Finding, apply ApplyFunc) (*RunStats, error) {
	stats := &RunStats{}

	if err := e.dedupe(ctx, batch, priors, apply, stats); err != nil {
		return stats, err
	}
	if err := e.compareAcrossAgents(ctx, batch, others, apply, stats); err != nil {
		return stats, err
	}

	// Evaluation covers the batch remainder plus retried leftovers.
	pending := make([]*Finding, 0, len(batch)+len(retry))
	for _, f := range batch {
		if f.Status == StatusPending {
			pending = append(pending, f)
		}
	}
	for _, f := range retry {
		if f.Status == StatusPending {
			pending = append(pending, f)
			stats.Retried++
		}
	}

	if err := e.evaluatePending(ctx, pending, apply); err != nil {
		return stats, err
	}

	for _, f := range batch {
		switch f.Status {
		case StatusUniqueValid:
			stats.NewValid++
		case StatusDisputed:
			stats.Disputed++
		case StatusPending:
			stats.Pending++
		}
	}
	return stats, nil
}

// bestMatch scores f against each candidate in order and returns the
// candidate with the highest score at or above the threshold (inclusive).
// Exact score ties keep the earlier candidate, so callers pass candidates in
// submission order. A failed oracle call counts as no similarity.
func (e *Engine) bestMatch(ctx context.Context, stage string, f *Finding, candidates []*Finding) (best *Finding, bestScore float64, explanation string) {
	text := f.CompareText(e.profile)
	bestScore = -1

	for _, c := range candidates {
		start := time.Now()
		score, expl, err := e.similarity.Score(ctx, text, c.CompareText(e.profile))
		dur := time.Since(start).Seconds()

		if e.hooks.OnComparison != nil {
			e.hooks.OnComparison(stage, score, dur, err != nil)
		}
		if err != nil {
			e.logger.Error(ctx, err, "similarity oracle call failed",
				"stage", stage,
				"finding", f.FindingID,
				"candidate", c.FindingID,
			)
			continue
		}
		if score >= e.threshold && score > bestScore {
			best, bestScore, explanation = c, score, expl
		}
	}
	return best, bestScore, explanation
}
