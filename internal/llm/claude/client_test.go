package claude

import (
	"strings"
	"testing"

	"github.com/NethermindEth/agentarena-arbiter/internal/triage"
)

func TestParseSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		in          string
		wantScore   float64
		wantExplain string
		wantErr     bool
	}{
		{
			name:        "explanation then score",
			in:          "Both findings describe the same reentrancy bug in withdraw().\n\nSimilarity score: 0.92",
			wantScore:   0.92,
			wantExplain: "Both findings describe the same reentrancy bug in withdraw().",
		},
		{
			name:      "score only",
			in:        "Similarity score: 0.15",
			wantScore: 0.15,
		},
		{
			name:      "lowercase label",
			in:        "different issues entirely\nsimilarity score: 0.05",
			wantScore: 0.05,
		},
		{
			name:      "integer one",
			in:        "Identical.\nSimilarity score: 1",
			wantScore: 1,
		},
		{
			name:    "no score line",
			in:      "These findings look somewhat alike.",
			wantErr: true,
		},
		{
			name:    "empty response",
			in:      "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			score, explain, err := parseSimilarity(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if score != tt.wantScore {
				t.Errorf("score = %v, want %v", score, tt.wantScore)
			}
			if tt.wantExplain != "" && explain != tt.wantExplain {
				t.Errorf("explanation = %q, want %q", explain, tt.wantExplain)
			}
		})
	}
}

func TestParseSimilarity_ExplanationStripped(t *testing.T) {
	t.Parallel()

	in := "  The two reports target the same access control gap.  \nSimilarity score: 0.88\n"
	_, explain, err := parseSimilarity(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(explain, "Similarity score") {
		t.Errorf("explanation contains score line: %q", explain)
	}
	if explain != "The two reports target the same access control gap." {
		t.Errorf("explanation = %q", explain)
	}
}

func TestParseVerdict_Valid(t *testing.T) {
	t.Parallel()

	in := `IS_VALID: yes
CATEGORY: Reentrancy
SEVERITY: high
COMMENT: External call precedes the state update, allowing recursive drains.`

	v := parseVerdict(in)

	if !v.Valid {
		t.Error("expected Valid = true")
	}
	if v.Category != "Reentrancy" {
		t.Errorf("Category = %q, want %q", v.Category, "Reentrancy")
	}
	if v.Severity != triage.SeverityHigh {
		t.Errorf("Severity = %q, want %q", v.Severity, triage.SeverityHigh)
	}
	if v.Comment != "External call precedes the state update, allowing recursive drains." {
		t.Errorf("Comment = %q", v.Comment)
	}
}

func TestParseVerdict_Invalid(t *testing.T) {
	t.Parallel()

	in := `IS_VALID: no
COMMENT: The described overflow is unreachable with Solidity 0.8 checked math.`

	v := parseVerdict(in)

	if v.Valid {
		t.Error("expected Valid = false")
	}
	if v.Category != "" {
		t.Errorf("Category = %q, want empty", v.Category)
	}
	if v.Severity != "" {
		t.Errorf("Severity = %q, want empty", v.Severity)
	}
}

func TestParseVerdict_SeverityAliases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want triage.Severity
	}{
		{"trivial", triage.SeverityLow},
		{"low", triage.SeverityLow},
		{"medium", triage.SeverityMedium},
		{"high", triage.SeverityHigh},
		{"critical", triage.SeverityHigh},
		{"catastrophic", triage.SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			v := parseVerdict("IS_VALID: yes\nSEVERITY: " + tt.in + "\nCOMMENT: ok")
			if v.Severity != tt.want {
				t.Errorf("Severity = %q, want %q", v.Severity, tt.want)
			}
		})
	}
}

func TestParseVerdict_Defaults(t *testing.T) {
	t.Parallel()

	v := parseVerdict("I am unable to evaluate this finding.")

	if v.Valid {
		t.Error("missing IS_VALID should default to invalid")
	}
	if v.Comment != "No comment provided." {
		t.Errorf("Comment = %q, want placeholder", v.Comment)
	}
}

func TestParseVerdict_SurroundingProse(t *testing.T) {
	t.Parallel()

	in := `Here is my evaluation:

IS_VALID: yes
CATEGORY: Access Control
SEVERITY: medium
COMMENT: Missing onlyOwner on a privileged setter.

Let me know if you need more detail.`

	v := parseVerdict(in)

	if !v.Valid || v.Category != "Access Control" || v.Severity != triage.SeverityMedium {
		t.Errorf("verdict = %+v", v)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("0123456789abc", 10); got != "0123456789..." {
		t.Errorf("truncate = %q", got)
	}
}
