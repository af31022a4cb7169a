package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NethermindEth/agentarena-arbiter/internal/triage"
)

func TestNotify_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	report := &triage.Report{
		RunID:    "01JN123",
		TaskID:   "task-7",
		AgentID:  "agent-a",
		Received: 3,
		NewValid: 1,
		Similar:  1,
		Disputed: 1,
		Duration: 23.4,
		Findings: []triage.Finding{
			{FindingID: "F-1", Title: "Reentrancy in withdraw", Status: triage.StatusUniqueValid, Category: "Reentrancy", EvaluatedSeverity: triage.SeverityHigh},
			{FindingID: "F-2", Title: "Unchecked return", Status: triage.StatusDisputed},
		},
	}

	if err := n.Notify(context.Background(), report); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}

	// header, divider, fields, divider, findings, divider, context = 7 blocks
	if len(blocks) != 7 {
		t.Errorf("blocks count = %d, want 7", len(blocks))
	}

	header := blocks[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "task-7") || !strings.Contains(headerText, "agent-a") {
		t.Errorf("header text = %q, want task and agent", headerText)
	}
	if !strings.Contains(headerText, "\U0001f534") {
		t.Error("header should contain red circle when valid findings exist")
	}

	findings := blocks[4].(map[string]any)
	text := findings["text"].(map[string]any)["text"].(string)
	if !strings.Contains(text, "F-1") || !strings.Contains(text, "Reentrancy") {
		t.Errorf("findings text = %q, want finding details", text)
	}
}

func TestNotify_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("")
	if err := n.Notify(context.Background(), &triage.Report{}); err != nil {
		t.Fatalf("Notify with empty URL should be no-op, got: %v", err)
	}
}

func TestNotify_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	n := New(srv.URL)
	err := n.Notify(context.Background(), &triage.Report{RunID: "01JN789"})
	if err == nil {
		t.Fatal("expected error on non-OK status")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q, want to contain status code 500", err.Error())
	}
}

func TestRunEmoji(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		report triage.Report
		want   string
	}{
		{"pending remain", triage.Report{Pending: 1, NewValid: 2}, "\U0001f7e1"},
		{"valid findings", triage.Report{NewValid: 1}, "\U0001f534"},
		{"similar findings", triage.Report{Similar: 2}, "\U0001f534"},
		{"all clear", triage.Report{Duplicates: 1, Disputed: 2}, "\U0001f7e2"},
		{"empty run", triage.Report{}, "\U0001f7e2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := runEmoji(&tt.report)
			if got != tt.want {
				t.Errorf("runEmoji = %q, want %q", got, tt.want)
			}
		})
	}
}

func FuzzSlackBuild(f *testing.F) {
	f.Add("task-1", "agent-a", "F-1", "Reentrancy in withdraw")
	f.Add("", "", "", "")
	f.Add("<@U123> mention", "agent", "F", "*bold* _italic_ ~strike~")
	f.Add("task\x00\x01\x02", "agent\nline", "F\ttab", "t\x00tle")
	f.Add(strings.Repeat("A", 5000), "agent", "F-1", strings.Repeat("x", 10000))

	f.Fuzz(func(t *testing.T, taskID, agentID, findingID, title string) {
		report := &triage.Report{
			RunID:    "fuzz-id",
			TaskID:   taskID,
			AgentID:  agentID,
			Received: 1,
			Findings: []triage.Finding{{FindingID: findingID, Title: title, Status: triage.StatusPending}},
			Duration: 1.0,
		}

		// Must not panic
		msg := buildMessage(report)

		// Must produce valid JSON
		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("buildMessage produced non-marshalable output: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("buildMessage JSON does not round-trip: %v", err)
		}

		blocks, ok := decoded["blocks"].([]any)
		if !ok {
			t.Fatal("expected blocks array")
		}
		if len(blocks) != 7 {
			t.Fatalf("blocks count = %d, want 7", len(blocks))
		}
	})
}
