// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/NethermindEth/agentarena-arbiter/internal/triage"
)

// Store holds findings in memory. Suitable for dev/testing.
type Store struct {
	mu       sync.RWMutex
	byID     map[string]*triage.Finding // record ID -> finding
	order    []string                   // record IDs in insertion order
	failNext error                      // next write fails with this error (test hook)
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{byID: make(map[string]*triage.Finding)}
}

// FailNextWrite makes the next Insert/Update/UpdatePair return err. Used by
// tests to exercise mid-batch write failures.
func (s *Store) FailNextWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Store) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

// Insert stores a copy of the finding.
func (s *Store) Insert(_ context.Context, f *triage.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	if _, ok := s.byID[f.ID]; ok {
		return fmt.Errorf("memstore: record %s already exists", f.ID)
	}
	cp := *f
	s.byID[f.ID] = &cp
	s.order = append(s.order, f.ID)
	return nil
}

// Update rewrites an existing finding.
func (s *Store) Update(_ context.Context, f *triage.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	return s.update(f)
}

// UpdatePair rewrites two findings as one unit: if the injected failure (or a
// missing record) trips, neither write lands.
func (s *Store) UpdatePair(_ context.Context, a, b *triage.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	if _, ok := s.byID[a.ID]; !ok {
		return fmt.Errorf("memstore: record %s not found", a.ID)
	}
	if _, ok := s.byID[b.ID]; !ok {
		return fmt.Errorf("memstore: record %s not found", b.ID)
	}
	if err := s.update(a); err != nil {
		return err
	}
	return s.update(b)
}

func (s *Store) update(f *triage.Finding) error {
	if _, ok := s.byID[f.ID]; !ok {
		return fmt.Errorf("memstore: record %s not found", f.ID)
	}
	cp := *f
	s.byID[f.ID] = &cp
	return nil
}

// Get retrieves the most recent record for a finding ID within a task.
// Returns a copy.
func (s *Store) Get(_ context.Context, taskID, findingID string) (*triage.Finding, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Walk insertion order backwards so the latest submission wins.
	for i := len(s.order) - 1; i >= 0; i-- {
		f := s.byID[s.order[i]]
		if f.TaskID == taskID && f.FindingID == findingID {
			cp := *f
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

// ListByTask returns every finding for a task in creation order. Returns
// copies.
func (s *Store) ListByTask(_ context.Context, taskID string) ([]*triage.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*triage.Finding
	for _, id := range s.order {
		if f := s.byID[id]; f.TaskID == taskID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ListByAgentAndTask returns one agent's findings for a task in submission
// order. Returns copies.
func (s *Store) ListByAgentAndTask(_ context.Context, taskID, agentID string) ([]*triage.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*triage.Finding
	for _, id := range s.order {
		if f := s.byID[id]; f.TaskID == taskID && f.AgentID == agentID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmissionID < out[j].SubmissionID })
	return out, nil
}
