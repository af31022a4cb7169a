package triage

import "context"

// Store is the persistence interface for findings. Reads must reflect all
// writes from the same or an earlier completed triage run for the task.
type Store interface {
	// Insert adds a new finding record. Re-submission of an existing
	// (task, agent, finding_id) is permitted: the audit trail retains every
	// submission and the dedup stage marks the newer record already_reported.
	Insert(ctx context.Context, f *Finding) error

	// Update rewrites the triage-owned fields of an existing finding.
	Update(ctx context.Context, f *Finding) error

	// UpdatePair rewrites two findings as a single failure unit. The
	// cross-agent stage uses it so a demotion and the matching finding's own
	// write either both land or neither does.
	UpdatePair(ctx context.Context, a, b *Finding) error

	// Get retrieves the most recent record for an agent-chosen finding ID
	// within a task.
	Get(ctx context.Context, taskID, findingID string) (*Finding, bool, error)

	// ListByTask returns every finding for a task, ordered by creation.
	ListByTask(ctx context.Context, taskID string) ([]*Finding, error)

	// ListByAgentAndTask returns one agent's findings for a task, ordered by
	// submission.
	ListByAgentAndTask(ctx context.Context, taskID, agentID string) ([]*Finding, error)
}
