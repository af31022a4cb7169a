// Package cfg holds the arbiter's configuration, bound to flags and filled
// from the environment by go-core's cfg helpers.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/NethermindEth/agentarena-arbiter/internal/triage"
)

// Config adds arbiter-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int

	ClaudeAPIKey string
	ClaudeModel  string
	OpenAIAPIKey string

	SimilarityProvider  string
	SimilarityThreshold float64
	SimilarityFields    string
	EvalWorkers         int
	OracleRPS           float64

	DatabaseURL string

	APIToken    string
	AgentTokens string

	MaxFindingsPerSubmission int
	ReportCacheTTLSeconds    int

	SlackWebhookURL string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for accessing the Claude LLM provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.StringVar(&c.OpenAIAPIKey, "openai-api-key", "", "OpenAI API key (required for the embedding similarity provider)")
	fs.StringVar(&c.SimilarityProvider, "similarity-provider", "claude", "similarity oracle backend: claude or embedding")
	fs.Float64Var(&c.SimilarityThreshold, "similarity-threshold", triage.DefaultThreshold, "minimum similarity score to mark findings as the same issue (0..1]")
	fs.StringVar(&c.SimilarityFields, "similarity-fields", string(triage.CompareFull), "fields in the comparison text: full or core")
	fs.IntVar(&c.EvalWorkers, "eval-workers", triage.DefaultEvalWorkers, "concurrent verdict evaluations per run (1..64)")
	fs.Float64Var(&c.OracleRPS, "oracle-rps", 0, "oracle request rate limit per second (0 = unlimited)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.APIToken, "api-token", "", "shared bearer token for the API (empty = no auth)")
	fs.StringVar(&c.AgentTokens, "agent-tokens", "", "per-agent submission tokens as agent=token[,agent=token...]")
	fs.IntVar(&c.MaxFindingsPerSubmission, "max-findings-per-submission", 20, "maximum findings accepted in one batch (1..100)")
	fs.IntVar(&c.ReportCacheTTLSeconds, "report-cache-ttl-seconds", 300, "task report cache TTL, 0 disables the cache")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for run notifications")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	switch c.SimilarityProvider {
	case "claude":
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required"))
		}
		if c.ClaudeModel == "" {
			errs = append(errs, errors.New("CLAUDE_MODEL is required"))
		}
	case "embedding":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the embedding provider"))
		}
		// The verdict oracle is always Claude-backed.
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid SIMILARITY_PROVIDER %q (must be claude or embedding)", c.SimilarityProvider))
	}

	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("invalid SIMILARITY_THRESHOLD %v (must be in (0, 1])", c.SimilarityThreshold))
	}
	if !triage.CompareProfile(c.SimilarityFields).Valid() {
		errs = append(errs, fmt.Errorf("invalid SIMILARITY_FIELDS %q (must be full or core)", c.SimilarityFields))
	}
	if c.EvalWorkers <= 0 || c.EvalWorkers > 64 {
		errs = append(errs, fmt.Errorf("invalid EVAL_WORKERS %d (must be 1..64)", c.EvalWorkers))
	}
	if c.OracleRPS < 0 {
		errs = append(errs, fmt.Errorf("invalid ORACLE_RPS %v (must be >= 0)", c.OracleRPS))
	}
	if c.MaxFindingsPerSubmission <= 0 || c.MaxFindingsPerSubmission > 100 {
		errs = append(errs, fmt.Errorf("invalid MAX_FINDINGS_PER_SUBMISSION %d (must be 1..100)", c.MaxFindingsPerSubmission))
	}
	if c.ReportCacheTTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("invalid REPORT_CACHE_TTL_SECONDS %d (must be >= 0)", c.ReportCacheTTLSeconds))
	}

	if _, err := ParseAgentTokens(c.AgentTokens); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ParseAgentTokens parses the agent=token[,agent=token...] flag value. An
// empty value yields a nil map, meaning per-agent auth is disabled.
func ParseAgentTokens(s string) (map[string]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	tokens := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		agent, token, ok := strings.Cut(pair, "=")
		if !ok || agent == "" || token == "" {
			return nil, fmt.Errorf("invalid AGENT_TOKENS entry %q (want agent=token)", pair)
		}
		if _, dup := tokens[agent]; dup {
			return nil, fmt.Errorf("duplicate AGENT_TOKENS entry for agent %q", agent)
		}
		tokens[agent] = token
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	return tokens, nil
}
