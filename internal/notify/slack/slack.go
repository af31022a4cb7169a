// Package slack sends triage run reports to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NethermindEth/agentarena-arbiter/internal/triage"
)

const httpTimeout = 10 * time.Second

// Notifier posts run reports to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Notify posts a run report to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Notify(ctx context.Context, report *triage.Report) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(report)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(r *triage.Report) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(r),
			{"type": "divider"},
			fieldsBlock(r),
			{"type": "divider"},
			findingsBlock(r),
			{"type": "divider"},
			contextBlock(r),
		},
	}
}

func headerBlock(r *triage.Report) map[string]any {
	text := fmt.Sprintf("%s Triage Run: %s / %s", runEmoji(r), r.TaskID, r.AgentID)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(r *triage.Report) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Received:* %d", r.Received),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*New valid:* %d", r.NewValid),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Similar:* %d", r.Similar),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Duplicates:* %d", r.Duplicates),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Disputed:* %d", r.Disputed),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Pending:* %d", r.Pending),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func findingsBlock(r *triage.Report) map[string]any {
	var lines []string
	for _, f := range r.Findings {
		line := fmt.Sprintf("• `%s` %s — *%s*", f.FindingID, f.Title, f.Status)
		if f.Status == triage.StatusUniqueValid || f.Status == triage.StatusSimilarValid {
			line += fmt.Sprintf(" (%s, %s)", f.Category, f.EvaluatedSeverity)
		}
		lines = append(lines, line)
	}

	text := strings.Join(lines, "\n")
	if text == "" {
		text = "_No findings in batch._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Findings*\n\n%s", text),
		},
	}
}

func contextBlock(r *triage.Report) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("arbiter • run %s • %.1fs", r.RunID, r.Duration),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func runEmoji(r *triage.Report) string {
	switch {
	case r.Pending > 0:
		return "\U0001f7e1" // yellow circle, retries remain
	case r.NewValid > 0 || r.Similar > 0:
		return "\U0001f534" // red circle, confirmed vulnerabilities
	default:
		return "\U0001f7e2" // green circle
	}
}
