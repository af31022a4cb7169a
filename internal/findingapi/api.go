// Package findingapi is the HTTP boundary for agents: batch submission,
// single-finding lookup and the consolidated task report.
package findingapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/NethermindEth/agentarena-arbiter/internal/triage"
)

// DefaultMaxFindings caps the batch size of one submission.
const DefaultMaxFindings = 20

// TriageService defines the business operations findingapi needs.
type TriageService interface {
	Submit(ctx context.Context, taskID, agentID string, inputs []triage.FindingInput) (*triage.Report, error)
	Get(ctx context.Context, taskID, findingID string) (*triage.Finding, bool, error)
	TaskReport(ctx context.Context, taskID string) (*triage.TaskReport, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger      log.Logger
	svc         TriageService
	maxFindings int
}

// New creates a new API handler. maxFindings <= 0 selects the default cap.
func New(logger log.Logger, svc TriageService, maxFindings int) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	if maxFindings <= 0 {
		maxFindings = DefaultMaxFindings
	}
	return &API{
		logger:      logger,
		svc:         svc,
		maxFindings: maxFindings,
	}
}

// RegisterRoutes attaches API endpoints to the router. submitAuth middleware
// is applied to the submission endpoint only, inline on the route so URL
// params like {agentID} are populated before it runs.
func (a *API) RegisterRoutes(r chi.Router, submitAuth ...func(http.Handler) http.Handler) {
	r.Route("/api/v1/tasks/{taskID}", func(r chi.Router) {
		r.With(submitAuth...).Post("/agents/{agentID}/findings", a.handleSubmit)
		r.Get("/findings/{findingID}", a.handleGetFinding)
		r.Get("/report", a.handleTaskReport)
	})
}

func (a *API) handleGetFinding(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	findingID := chi.URLParam(r, "findingID")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("arbiter.task.id", taskID),
		attribute.String("arbiter.finding.id", findingID),
	)

	f, ok, err := a.svc.Get(r.Context(), taskID, findingID)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get finding", "task", taskID, "finding", findingID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	span.SetAttributes(attribute.String("arbiter.finding.status", string(f.Status)))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(f)
}

func (a *API) handleTaskReport(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("arbiter.task.id", taskID))

	report, err := a.svc.TaskReport(r.Context(), taskID)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to build task report", "task", taskID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}
