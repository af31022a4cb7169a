package triage

import (
	"strings"
	"time"
)

// Status tracks where a finding is in the triage lifecycle.
type Status string

const (
	// StatusPending means submitted, not yet fully triaged. Findings left
	// pending by an oracle failure are retried on the next run for the task.
	StatusPending Status = "pending"

	// StatusAlreadyReported means a self-duplicate: the same agent already
	// submitted this finding. Terminal; excluded from all later comparisons.
	StatusAlreadyReported Status = "already_reported"

	// StatusUniqueValid means the verdict oracle confirmed the finding and no
	// other agent has reported the same issue (yet). May later be demoted to
	// StatusSimilarValid when another agent reports the same issue.
	StatusUniqueValid Status = "unique_valid"

	// StatusSimilarValid means the finding describes the same underlying
	// issue as a finding from another agent and shares its category group.
	StatusSimilarValid Status = "similar_valid"

	// StatusDisputed means the verdict oracle rejected the finding. Terminal.
	StatusDisputed Status = "disputed"
)

// Severity is a coarse severity level, used both for the severity an agent
// reports and for the severity the verdict oracle assigns.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// NormalizeSeverity maps free-form severity text onto the Severity enum.
// Unknown values fall back to MEDIUM so a sloppy oracle answer never blocks
// an otherwise valid verdict.
func NormalizeSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "trivial":
		return SeverityLow
	case "medium":
		return SeverityMedium
	case "high", "critical":
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// FindingInput is one finding as submitted by an agent, before the engine
// attaches any triage state.
type FindingInput struct {
	FindingID      string   `json:"finding_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation,omitempty"`
	CodeReferences []string `json:"code_references,omitempty"`
	Severity       Severity `json:"severity"`
}

// Finding is the central entity: one reported vulnerability from one agent
// for one task. Content fields are immutable once created; triage fields are
// owned exclusively by the engine.
type Finding struct {
	// ID is the arbiter-assigned record identifier (ULID).
	ID string `json:"id"`

	TaskID  string `json:"task_id"`
	AgentID string `json:"reported_by_agent"`

	// FindingID is the agent-chosen identifier; (TaskID, AgentID, FindingID)
	// is unique. SubmissionID is monotonic per agent and orders the finding
	// among that agent's history.
	FindingID    string `json:"finding_id"`
	SubmissionID int    `json:"submission_id"`

	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation,omitempty"`
	CodeReferences []string `json:"code_references,omitempty"`

	// ReportedSeverity is the severity the agent originally claimed.
	ReportedSeverity Severity `json:"severity"`

	Status Status `json:"status"`

	// Category, CategoryID and EvaluatedSeverity are set iff Status is
	// unique_valid or similar_valid. Every finding in the same similarity
	// group shares the same CategoryID and EvaluatedSeverity.
	Category          string   `json:"category,omitempty"`
	CategoryID        string   `json:"category_id,omitempty"`
	EvaluatedSeverity Severity `json:"evaluated_severity,omitempty"`

	EvaluationComment string `json:"evaluation_comment,omitempty"`

	// SimilarTo is the FindingID of the finding this one was judged similar
	// to (the origin of its category), or the duplicated prior for
	// already_reported findings. Directional, never cyclic.
	SimilarTo string `json:"similar_to,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CompareProfile selects which content fields feed the composite similarity
// text. The source material disagrees across revisions about the field set,
// so it is configuration rather than a hardcoded choice.
type CompareProfile string

const (
	// CompareFull concatenates title, description, recommendation and code
	// references.
	CompareFull CompareProfile = "full"

	// CompareCore concatenates title and description only.
	CompareCore CompareProfile = "core"
)

// Valid reports whether p is a known profile.
func (p CompareProfile) Valid() bool {
	return p == CompareFull || p == CompareCore
}

// CompareText builds the canonical composite text used for similarity
// comparison under the given profile.
func (f *Finding) CompareText(p CompareProfile) string {
	parts := []string{
		"Title: " + f.Title,
		"Description: " + f.Description,
	}
	if p == CompareFull {
		parts = append(parts,
			"Recommendation: "+f.Recommendation,
			"Code References: "+strings.Join(f.CodeReferences, ", "),
		)
	}
	return strings.Join(parts, "\n")
}

// Comparable reports whether the finding may serve as a cross-agent
// comparison candidate. Disputed and already_reported findings contribute no
// category to inherit.
func (f *Finding) Comparable() bool {
	return f.Status == StatusUniqueValid || f.Status == StatusSimilarValid
}

// Report is the consolidated outcome of one triage run, covering exactly the
// findings submitted in the batch. Demoted counts previously stored findings
// rewritten by the cross-agent stage and Retried counts previously pending
// findings re-sent to the verdict oracle; neither is part of Received.
type Report struct {
	RunID   string `json:"run_id"`
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`

	Received   int `json:"received"`
	Duplicates int `json:"duplicates"`
	Similar    int `json:"similar"`
	NewValid   int `json:"new_valid"`
	Disputed   int `json:"disputed"`
	Pending    int `json:"pending"`

	Demoted int `json:"demoted"`
	Retried int `json:"retried"`

	Findings []Finding `json:"findings"`

	Duration float64 `json:"duration_seconds"`
}

// TaskReport is the aggregated view of every finding in a task, grouped by
// category for reward allocation.
type TaskReport struct {
	TaskID      string          `json:"task_id"`
	Total       int             `json:"total"`
	ByStatus    map[Status]int  `json:"by_status"`
	Groups      []CategoryGroup `json:"groups"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// CategoryGroup is one similarity group: every finding judged to describe
// the same underlying issue.
type CategoryGroup struct {
	CategoryID string   `json:"category_id"`
	Category   string   `json:"category"`
	Severity   Severity `json:"severity"`
	Members    []string `json:"members"` // finding IDs, ordered by creation
	Agents     []string `json:"agents"`  // distinct reporting agents
}
