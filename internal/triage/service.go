package triage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// ReportCache caches consolidated task reports between submissions.
type ReportCache interface {
	Get(taskID string) (*TaskReport, bool)
	Set(taskID string, r *TaskReport)
	Invalidate(taskID string)
}

// Notifier receives the report of a completed triage run.
type Notifier interface {
	Notify(ctx context.Context, report *Report) error
}

// Service is the business boundary for triage operations. It owns the
// per-task critical section, reads and writes the store, and aggregates the
// run report; the stage decisions themselves live in Engine.
type Service struct {
	store    Store
	engine   *Engine
	logger   log.Logger
	metrics  *Metrics
	cache    ReportCache
	notifier Notifier

	mu        sync.Mutex
	taskLocks map[string]*sync.Mutex
}

// NewService creates a new triage service. metrics, cache and notifier may be
// nil.
func NewService(store Store, engine *Engine, logger log.Logger, metrics *Metrics, cache ReportCache, notifier Notifier) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:     store,
		engine:    engine,
		logger:    logger,
		metrics:   metrics,
		cache:     cache,
		notifier:  notifier,
		taskLocks: make(map[string]*sync.Mutex),
	}
}

// Submit triages one ordered batch of findings from one agent. Concurrent
// batches for different tasks run in parallel; batches for the same task are
// serialized because the cross-agent stage's retroactive demotion depends on
// the comparison snapshot matching what is persisted.
//
// The returned report reflects exactly what was durably persisted; on a
// mid-run error the partial report is returned alongside the error.
func (s *Service) Submit(ctx context.Context, taskID, agentID string, inputs []FindingInput) (*Report, error) {
	start := time.Now()
	runID := ulid.Make().String()

	L := s.logger.With("run_id", runID, "task", taskID, "agent", agentID)

	unlock := s.lockTask(taskID)
	defer unlock()

	report := &Report{
		RunID:    runID,
		TaskID:   taskID,
		AgentID:  agentID,
		Received: len(inputs),
	}

	priors, err := s.store.ListByAgentAndTask(ctx, taskID, agentID)
	if err != nil {
		return nil, fmt.Errorf("list agent findings: %w", err)
	}
	all, err := s.store.ListByTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task findings: %w", err)
	}

	var others, retry []*Finding
	for _, f := range all {
		if f.AgentID != agentID {
			others = append(others, f)
		}
		if f.Status == StatusPending {
			retry = append(retry, f)
		}
	}

	nextSub := 1
	for _, p := range priors {
		if p.SubmissionID >= nextSub {
			nextSub = p.SubmissionID + 1
		}
	}

	// Every submission is persisted as pending first: the audit trail keeps
	// all agent submissions, including ones later superseded.
	batch := make([]*Finding, 0, len(inputs))
	now := time.Now().UTC()
	for i, in := range inputs {
		f := &Finding{
			ID:               ulid.Make().String(),
			TaskID:           taskID,
			AgentID:          agentID,
			FindingID:        in.FindingID,
			SubmissionID:     nextSub + i,
			Title:            in.Title,
			Description:      in.Description,
			Recommendation:   in.Recommendation,
			CodeReferences:   in.CodeReferences,
			ReportedSeverity: in.Severity,
			Status:           StatusPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.store.Insert(ctx, f); err != nil {
			return nil, fmt.Errorf("insert finding %s: %w", f.FindingID, err)
		}
		batch = append(batch, f)
	}

	stats, runErr := s.engine.Run(ctx, batch, priors, others, retry, s.apply)

	report.Duplicates = stats.Duplicates
	report.Similar = stats.Similar
	report.NewValid = stats.NewValid
	report.Disputed = stats.Disputed
	report.Pending = stats.Pending
	report.Demoted = stats.Demoted
	report.Retried = stats.Retried
	report.Duration = time.Since(start).Seconds()

	report.Findings = make([]Finding, len(batch))
	for i, f := range batch {
		report.Findings[i] = *f
	}

	if s.cache != nil {
		s.cache.Invalidate(taskID)
	}
	if s.metrics != nil {
		s.metrics.ObserveRun(report)
	}

	if runErr != nil {
		L.Error(ctx, runErr, "triage run failed mid-batch",
			"received", report.Received,
			"pending", report.Pending,
		)
		return report, fmt.Errorf("triage run %s: %w", runID, runErr)
	}

	L.Info(ctx, "triage run complete",
		"received", report.Received,
		"duplicates", report.Duplicates,
		"similar", report.Similar,
		"new_valid", report.NewValid,
		"disputed", report.Disputed,
		"pending", report.Pending,
		"demoted", report.Demoted,
		"retried", report.Retried,
		"duration", report.Duration,
	)

	if s.notifier != nil {
		// Notification must not delay or fail the submission response.
		go func(r Report) {
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
			defer cancel()
			if err := s.notifier.Notify(nctx, &r); err != nil {
				s.logger.Error(nctx, err, "run notification failed", "run_id", r.RunID)
			}
		}(*report)
	}

	return report, nil
}

// Get retrieves the latest record for one finding within a task.
func (s *Service) Get(ctx context.Context, taskID, findingID string) (*Finding, bool, error) {
	return s.store.Get(ctx, taskID, findingID)
}

// TaskReport builds (or serves from cache) the consolidated view of every
// finding in a task, grouped by category.
func (s *Service) TaskReport(ctx context.Context, taskID string) (*TaskReport, error) {
	if s.cache != nil {
		if r, ok := s.cache.Get(taskID); ok {
			return r, nil
		}
	}

	all, err := s.store.ListByTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task findings: %w", err)
	}

	r := &TaskReport{
		TaskID:      taskID,
		Total:       len(all),
		ByStatus:    make(map[Status]int),
		GeneratedAt: time.Now().UTC(),
	}

	groups := make(map[string]*CategoryGroup)
	var order []string
	for _, f := range all {
		r.ByStatus[f.Status]++
		if f.CategoryID == "" {
			continue
		}
		g, ok := groups[f.CategoryID]
		if !ok {
			g = &CategoryGroup{
				CategoryID: f.CategoryID,
				Category:   f.Category,
				Severity:   f.EvaluatedSeverity,
			}
			groups[f.CategoryID] = g
			order = append(order, f.CategoryID)
		}
		g.Members = append(g.Members, f.FindingID)
		if !containsString(g.Agents, f.AgentID) {
			g.Agents = append(g.Agents, f.AgentID)
		}
	}

	r.Groups = make([]CategoryGroup, 0, len(groups))
	for _, id := range order {
		sort.Strings(groups[id].Agents)
		r.Groups = append(r.Groups, *groups[id])
	}

	if s.cache != nil {
		s.cache.Set(taskID, r)
	}
	return r, nil
}

// apply persists engine mutations; two findings form one atomic unit.
func (s *Service) apply(ctx context.Context, findings ...*Finding) error {
	switch len(findings) {
	case 1:
		return s.store.Update(ctx, findings[0])
	case 2:
		return s.store.UpdatePair(ctx, findings[0], findings[1])
	default:
		return fmt.Errorf("apply expects 1 or 2 findings, got %d", len(findings))
	}
}

// lockTask acquires the per-task critical section and returns its release.
func (s *Service) lockTask(taskID string) func() {
	s.mu.Lock()
	l, ok := s.taskLocks[taskID]
	if !ok {
		l = &sync.Mutex{}
		s.taskLocks[taskID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
