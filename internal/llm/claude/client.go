// Package claude implements the similarity and verdict oracles on top of the
// Anthropic Messages API. Responses are plain text with a fixed trailing
// format that the parsers in this package extract; anything malformed is
// surfaced as an error so the caller can retry rather than guess.
package claude

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/NethermindEth/agentarena-arbiter/internal/triage"
)

const defaultMaxTokens = 1024

// Client calls Claude for both oracle roles. A single shared rate limiter
// covers similarity and verdict calls so a large batch cannot exceed the
// configured request budget.
type Client struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	limiter   *rate.Limiter
}

// New creates a Claude-backed oracle client. rps bounds outgoing requests
// per second; zero or negative means unlimited.
func New(apiKey, model string, rps float64) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: defaultMaxTokens,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

const similarityPrompt = `Compare these two security findings and determine their similarity on a scale from 0 to 1.

Finding 1:
%s

Finding 2:
%s

Analyze the similarity in these aspects:
1. Title similarity (0.25 weight)
2. Description similarity (0.35 weight)
3. Vulnerability type (0.25 weight)
4. File path and code references (0.15 weight)

For two findings to be considered similar, they should describe the same underlying security issue.
Even if the descriptions are somewhat similar but they point to different vulnerabilities, they should receive a low similarity score.

First explain your comparison in 2-3 sentences, then output a single decimal number between 0 and 1 on a separate line.
Format your final answer as: "Similarity score: 0.XX"`

const verdictPrompt = `You are a blockchain security expert tasked with evaluating the validity and severity of smart contract vulnerabilities.
Please analyze the following security finding and determine:

1. Is it a valid smart contract security issue? Evaluate the technical accuracy and impact.
2. What security category does it belong to? Use standard categories for smart contracts (e.g., Reentrancy, Integer Overflow/Underflow, Access Control, Logic Error, etc.).
3. What is the appropriate severity level (low, medium, high, critical)?
4. Provide a brief explanation of your evaluation.

Finding details:
Title: %s
Description: %s
Reported Severity: %s

Analyze the provided information thoroughly. Consider:
- Technical accuracy and feasibility in blockchain context
- Potential impact on contract funds, operations, or users
- Exploitation difficulty and prerequisites

Provide your evaluation in this exact format:
IS_VALID: yes/no
CATEGORY: category_name
SEVERITY: severity_level
COMMENT: Your explanation (2-3 sentences maximum)`

// Score implements triage.SimilarityOracle.
func (c *Client) Score(ctx context.Context, a, b string) (float64, string, error) {
	prompt := fmt.Sprintf(similarityPrompt, a, b)

	text, err := c.complete(ctx, prompt)
	if err != nil {
		return 0, "", err
	}
	return parseSimilarity(text)
}

// Evaluate implements triage.VerdictOracle.
func (c *Client) Evaluate(ctx context.Context, f *triage.Finding) (*triage.Verdict, error) {
	prompt := fmt.Sprintf(verdictPrompt, f.Title, f.Description, f.ReportedSeverity)

	text, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseVerdict(text), nil
}

// complete sends a single user message and returns the concatenated text
// blocks of the response. Temperature is pinned to zero to keep verdicts as
// reproducible as the model allows.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

var similarityScoreRe = regexp.MustCompile(`(?i)similarity score:\s*([01](?:\.\d+)?)`)

// parseSimilarity extracts the trailing "Similarity score: 0.XX" line and
// returns the preceding prose as the explanation.
func parseSimilarity(text string) (float64, string, error) {
	loc := similarityScoreRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return 0, "", fmt.Errorf("no similarity score in response: %q", truncate(text, 200))
	}

	var score float64
	if _, err := fmt.Sscanf(text[loc[2]:loc[3]], "%f", &score); err != nil {
		return 0, "", fmt.Errorf("parse similarity score: %w", err)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	explanation := strings.TrimSpace(text[:loc[0]])
	return score, explanation, nil
}

// parseVerdict reads the IS_VALID/CATEGORY/SEVERITY/COMMENT lines. Missing
// IS_VALID defaults to invalid; missing COMMENT gets a placeholder. Category
// and severity are left empty when absent since only valid findings carry
// them forward.
func parseVerdict(text string) *triage.Verdict {
	v := &triage.Verdict{}

	commentSeen := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "IS_VALID:"):
			val := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "IS_VALID:")))
			v.Valid = val == "yes"
		case strings.HasPrefix(line, "CATEGORY:"):
			v.Category = strings.TrimSpace(strings.TrimPrefix(line, "CATEGORY:"))
		case strings.HasPrefix(line, "SEVERITY:"):
			v.Severity = triage.NormalizeSeverity(strings.TrimSpace(strings.TrimPrefix(line, "SEVERITY:")))
		case strings.HasPrefix(line, "COMMENT:"):
			v.Comment = strings.TrimSpace(strings.TrimPrefix(line, "COMMENT:"))
			commentSeen = true
		}
	}

	if !commentSeen {
		v.Comment = "No comment provided."
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
