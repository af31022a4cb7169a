// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NethermindEth/agentarena-arbiter/internal/triage"
)

var tracer = otel.Tracer("github.com/NethermindEth/agentarena-arbiter/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists findings in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on the given pool and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const findingColumns = `id, task_id, agent_id, finding_id, submission_id, title, description,
	recommendation, code_references, reported_severity, status, category, category_id,
	evaluated_severity, evaluation_comment, similar_to, created_at, updated_at`

// Insert adds a new finding record.
func (s *Store) Insert(ctx context.Context, f *triage.Finding) error {
	ctx, span := tracer.Start(ctx, "pgstore.Insert", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	refsJSON, err := json.Marshal(f.CodeReferences)
	if err != nil {
		return fmt.Errorf("marshal code references: %w", err)
	}

	query := `INSERT INTO findings (` + findingColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`

	_, err = s.pool.Exec(ctx, query,
		f.ID, f.TaskID, f.AgentID, f.FindingID, f.SubmissionID, f.Title, f.Description,
		f.Recommendation, refsJSON, string(f.ReportedSeverity), string(f.Status),
		nullable(f.Category), nullable(f.CategoryID), nullable(string(f.EvaluatedSeverity)),
		f.EvaluationComment, f.SimilarTo, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert finding: %w", err)
	}
	return nil
}

// Update rewrites the triage-owned fields of an existing finding.
func (s *Store) Update(ctx context.Context, f *triage.Finding) error {
	ctx, span := tracer.Start(ctx, "pgstore.Update", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	if err := s.updateOne(ctx, s.pool, f); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// UpdatePair rewrites two findings in one transaction so a demotion and the
// matching finding's own write land together or not at all.
func (s *Store) UpdatePair(ctx context.Context, a, b *triage.Finding) error {
	ctx, span := tracer.Start(ctx, "pgstore.UpdatePair", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if err := s.updateOne(ctx, tx, a); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := s.updateOne(ctx, tx, b); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get retrieves the most recent record for a finding ID within a task.
func (s *Store) Get(ctx context.Context, taskID, findingID string) (*triage.Finding, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + findingColumns + ` FROM findings
	WHERE task_id = $1 AND finding_id = $2 ORDER BY created_at DESC, id DESC LIMIT 1`

	f, err := scanFinding(s.pool.QueryRow(ctx, query, taskID, findingID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if f == nil {
		return nil, false, nil
	}
	return f, true, nil
}

// ListByTask returns every finding for a task in creation order.
func (s *Store) ListByTask(ctx context.Context, taskID string) ([]*triage.Finding, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListByTask", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + findingColumns + ` FROM findings
	WHERE task_id = $1 ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, taskID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query findings: %w", err)
	}
	return collectFindings(rows)
}

// ListByAgentAndTask returns one agent's findings for a task in submission
// order.
func (s *Store) ListByAgentAndTask(ctx context.Context, taskID, agentID string) ([]*triage.Finding, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListByAgentAndTask", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + findingColumns + ` FROM findings
	WHERE task_id = $1 AND agent_id = $2 ORDER BY submission_id, id`

	rows, err := s.pool.Query(ctx, query, taskID, agentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query agent findings: %w", err)
	}
	return collectFindings(rows)
}

// execer covers both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) updateOne(ctx context.Context, q execer, f *triage.Finding) error {
	query := `UPDATE findings SET
		status             = $2,
		category           = $3,
		category_id        = $4,
		evaluated_severity = $5,
		evaluation_comment = $6,
		similar_to         = $7,
		updated_at         = $8
	WHERE id = $1`

	tag, err := q.Exec(ctx, query,
		f.ID, string(f.Status), nullable(f.Category), nullable(f.CategoryID),
		nullable(string(f.EvaluatedSeverity)), f.EvaluationComment, f.SimilarTo, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update finding %s: %w", f.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update finding %s: no such record", f.ID)
	}
	return nil
}

// nullable maps the empty string onto SQL NULL so the category/status
// presence invariant is visible in the database.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func collectFindings(rows pgx.Rows) ([]*triage.Finding, error) {
	defer rows.Close()

	var out []*triage.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate findings: %w", err)
	}
	return out, nil
}

// scanFinding scans a single row into a triage.Finding. Returns (nil, nil)
// when no row is found.
func scanFinding(row pgx.Row) (*triage.Finding, error) {
	var (
		f                 triage.Finding
		refsJSON          []byte
		reportedSeverity  string
		status            string
		category          *string
		categoryID        *string
		evaluatedSeverity *string
	)

	err := row.Scan(
		&f.ID, &f.TaskID, &f.AgentID, &f.FindingID, &f.SubmissionID, &f.Title, &f.Description,
		&f.Recommendation, &refsJSON, &reportedSeverity, &status, &category, &categoryID,
		&evaluatedSeverity, &f.EvaluationComment, &f.SimilarTo, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	f.ReportedSeverity = triage.Severity(reportedSeverity)
	f.Status = triage.Status(status)
	if category != nil {
		f.Category = *category
	}
	if categoryID != nil {
		f.CategoryID = *categoryID
	}
	if evaluatedSeverity != nil {
		f.EvaluatedSeverity = triage.Severity(*evaluatedSeverity)
	}

	if err := json.Unmarshal(refsJSON, &f.CodeReferences); err != nil {
		return nil, fmt.Errorf("unmarshal code references: %w", err)
	}

	return &f, nil
}
