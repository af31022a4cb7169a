package triage

import "context"

// SimilarityOracle scores how likely two composite finding texts describe the
// same underlying issue. Score is in [0,1]; the explanation accompanies any
// duplicate/similar marking so an agent can see why its finding was folded
// into a group. The oracle may be statistical: identical inputs are not
// guaranteed identical outputs.
type SimilarityOracle interface {
	Score(ctx context.Context, a, b string) (float64, string, error)
}

// Verdict is the structured outcome of evaluating one finding's narrative.
type Verdict struct {
	Valid    bool     `json:"valid"`
	Category string   `json:"category,omitempty"`
	Severity Severity `json:"severity,omitempty"`
	Comment  string   `json:"comment"`
}

// VerdictOracle assesses whether a finding describes a genuine vulnerability
// and, if so, categorizes it and judges its severity. A returned error is
// treated as transient: the finding stays pending and is retried on the next
// run, never defaulted to a verdict.
type VerdictOracle interface {
	Evaluate(ctx context.Context, f *Finding) (*Verdict, error)
}
