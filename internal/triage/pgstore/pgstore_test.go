package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/NethermindEth/agentarena-arbiter/internal/triage"
	"github.com/NethermindEth/agentarena-arbiter/internal/triage/pgstore"
)

// openStore connects to the integration database or skips the test. Each test
// uses a unique task ID so runs do not interfere.
func openStore(t *testing.T) *pgstore.Store {
	t.Helper()

	dsn := os.Getenv("ARBITER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ARBITER_TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	s, err := pgstore.New(ctx, pool)
	if err != nil {
		pool.Close()
		t.Fatalf("pgstore.New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func newTaskID() string {
	return "task-" + ulid.Make().String()
}

func testFinding(taskID, agentID, findingID string, sub int) *triage.Finding {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &triage.Finding{
		ID:               ulid.Make().String(),
		TaskID:           taskID,
		AgentID:          agentID,
		FindingID:        findingID,
		SubmissionID:     sub,
		Title:            "Reentrancy in withdraw",
		Description:      "External call before state update.",
		Recommendation:   "Apply checks-effects-interactions.",
		CodeReferences:   []string{"vault.sol:42"},
		ReportedSeverity: triage.SeverityHigh,
		Status:           triage.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestStore_InsertAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	taskID := newTaskID()

	f := testFinding(taskID, "agent-a", "F-1", 1)
	if err := s.Insert(ctx, f); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok, err := s.Get(ctx, taskID, "F-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected finding to be found")
	}
	if got.ID != f.ID || got.Title != f.Title || got.ReportedSeverity != triage.SeverityHigh {
		t.Errorf("got %+v", got)
	}
	if len(got.CodeReferences) != 1 || got.CodeReferences[0] != "vault.sol:42" {
		t.Errorf("CodeReferences = %v", got.CodeReferences)
	}
	// Category fields are NULL until evaluation.
	if got.Category != "" || got.CategoryID != "" || got.EvaluatedSeverity != "" {
		t.Errorf("category fields should be empty: %q/%q/%q", got.Category, got.CategoryID, got.EvaluatedSeverity)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.Get(context.Background(), newTaskID(), "nonexistent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing finding")
	}
}

func TestStore_GetReturnsLatestRecord(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	taskID := newTaskID()

	first := testFinding(taskID, "agent-a", "F-1", 1)
	if err := s.Insert(ctx, first); err != nil {
		t.Fatalf("Insert first: %v", err)
	}

	second := testFinding(taskID, "agent-a", "F-1", 2)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	second.UpdatedAt = second.CreatedAt
	second.Status = triage.StatusAlreadyReported
	if err := s.Insert(ctx, second); err != nil {
		t.Fatalf("Insert second: %v", err)
	}

	got, ok, err := s.Get(ctx, taskID, "F-1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.ID != second.ID {
		t.Errorf("got record %q, want the latest %q", got.ID, second.ID)
	}
}

func TestStore_Update(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	taskID := newTaskID()

	f := testFinding(taskID, "agent-a", "F-1", 1)
	if err := s.Insert(ctx, f); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	f.Status = triage.StatusUniqueValid
	f.Category = "Reentrancy"
	f.CategoryID = "CAT-12345678"
	f.EvaluatedSeverity = triage.SeverityHigh
	f.EvaluationComment = "Confirmed."
	f.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	if err := s.Update(ctx, f); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _, err := s.Get(ctx, taskID, "F-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != triage.StatusUniqueValid || got.Category != "Reentrancy" || got.CategoryID != "CAT-12345678" {
		t.Errorf("got %+v", got)
	}
	if got.EvaluatedSeverity != triage.SeverityHigh || got.EvaluationComment != "Confirmed." {
		t.Errorf("got %+v", got)
	}
}

func TestStore_UpdateMissing(t *testing.T) {
	s := openStore(t)

	f := testFinding(newTaskID(), "agent-a", "F-1", 1)
	if err := s.Update(context.Background(), f); err == nil {
		t.Fatal("expected error updating a missing record")
	}
}

func TestStore_UpdatePairAtomic(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	taskID := newTaskID()

	a := testFinding(taskID, "agent-a", "F-a", 1)
	b := testFinding(taskID, "agent-b", "F-b", 1)
	if err := s.Insert(ctx, a); err != nil {
		t.Fatalf("Insert a: %v", err)
	}
	if err := s.Insert(ctx, b); err != nil {
		t.Fatalf("Insert b: %v", err)
	}

	a.Status = triage.StatusSimilarValid
	b.Status = triage.StatusSimilarValid
	if err := s.UpdatePair(ctx, a, b); err != nil {
		t.Fatalf("UpdatePair: %v", err)
	}

	gotA, _, _ := s.Get(ctx, taskID, "F-a")
	gotB, _, _ := s.Get(ctx, taskID, "F-b")
	if gotA.Status != triage.StatusSimilarValid || gotB.Status != triage.StatusSimilarValid {
		t.Errorf("statuses = %q, %q", gotA.Status, gotB.Status)
	}

	// A missing second record rolls the whole pair back.
	a.Status = triage.StatusUniqueValid
	missing := testFinding(taskID, "agent-b", "F-missing", 2)
	if err := s.UpdatePair(ctx, a, missing); err == nil {
		t.Fatal("expected error when one record of the pair is missing")
	}
	gotA, _, _ = s.Get(ctx, taskID, "F-a")
	if gotA.Status != triage.StatusSimilarValid {
		t.Errorf("a.Status = %q, want unchanged after rolled-back pair", gotA.Status)
	}
}

func TestStore_ListByTask(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	taskID := newTaskID()

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, rec := range []*triage.Finding{
		testFinding(taskID, "agent-a", "F-1", 1),
		testFinding(taskID, "agent-b", "F-2", 1),
		testFinding(taskID, "agent-a", "F-3", 2),
	} {
		rec.CreatedAt = base.Add(time.Duration(i) * time.Second)
		rec.UpdatedAt = rec.CreatedAt
		if err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	// A different task must not leak in.
	if err := s.Insert(ctx, testFinding(newTaskID(), "agent-a", "F-x", 1)); err != nil {
		t.Fatalf("Insert other task: %v", err)
	}

	got, err := s.ListByTask(ctx, taskID)
	if err != nil {
		t.Fatalf("ListByTask: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"F-1", "F-2", "F-3"} {
		if got[i].FindingID != want {
			t.Errorf("got[%d] = %q, want %q (creation order)", i, got[i].FindingID, want)
		}
	}
}

func TestStore_ListByAgentAndTask(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	taskID := newTaskID()

	// Inserted out of submission order on purpose.
	for _, rec := range []*triage.Finding{
		testFinding(taskID, "agent-a", "F-2", 2),
		testFinding(taskID, "agent-a", "F-1", 1),
		testFinding(taskID, "agent-b", "F-x", 1),
	} {
		if err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := s.ListByAgentAndTask(ctx, taskID, "agent-a")
	if err != nil {
		t.Fatalf("ListByAgentAndTask: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].SubmissionID != 1 || got[1].SubmissionID != 2 {
		t.Errorf("submission order = %d, %d", got[0].SubmissionID, got[1].SubmissionID)
	}
}
