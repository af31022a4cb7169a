package findingapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/NethermindEth/agentarena-arbiter/internal/triage"
)

// submitRequest is one ordered batch of findings from one agent.
type submitRequest struct {
	Findings []triage.FindingInput `json:"findings"`
}

type apiError struct {
	Error string `json:"error"`
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	agentID := chi.URLParam(r, "agentID")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("arbiter.task.id", taskID),
		attribute.String("arbiter.agent.id", agentID),
	)

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if len(req.Findings) == 0 {
		writeError(w, http.StatusBadRequest, "findings must not be empty")
		return
	}
	if len(req.Findings) > a.maxFindings {
		writeError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("too many findings: %d exceeds limit of %d", len(req.Findings), a.maxFindings))
		return
	}

	for i := range req.Findings {
		if msg := validateInput(&req.Findings[i]); msg != "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("finding %d: %s", i, msg))
			return
		}
	}

	span.SetAttributes(attribute.Int("arbiter.batch.size", len(req.Findings)))

	report, err := a.svc.Submit(r.Context(), taskID, agentID, req.Findings)
	if err != nil {
		a.logger.Error(r.Context(), err, "submission failed", "task", taskID, "agent", agentID)
		// A partial report means some findings were persisted before the
		// failure; agents retry and the dedup stage absorbs the overlap.
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

// validateInput normalizes severity in place and reports the first problem
// with the submitted finding, or "" when it is acceptable.
func validateInput(in *triage.FindingInput) string {
	if in.FindingID == "" {
		return "finding_id is required"
	}
	if in.Title == "" {
		return "title is required"
	}
	if in.Description == "" {
		return "description is required"
	}
	in.Severity = triage.NormalizeSeverity(string(in.Severity))
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Error: msg})
}
