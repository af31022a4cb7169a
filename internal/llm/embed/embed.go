// Package embed scores finding similarity with OpenAI text embeddings. It is
// the cheap, deterministic alternative to the Claude similarity oracle:
// one embeddings call per pair, cosine similarity clamped to [0,1].
package embed

import (
	"context"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Oracle implements the similarity oracle on top of the OpenAI embeddings
// endpoint.
type Oracle struct {
	client  *openai.Client
	model   openai.EmbeddingModel
	limiter *rate.Limiter
}

// New creates an embedding oracle. rps bounds outgoing requests per second;
// zero or negative means unlimited.
func New(apiKey string, rps float64) (*Oracle, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &Oracle{
		client:  openai.NewClientWithConfig(openai.DefaultConfig(apiKey)),
		model:   openai.SmallEmbedding3,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// Score embeds both texts in one request and returns their cosine
// similarity. Embeddings cannot explain themselves, so the explanation names
// the method and the score.
func (o *Oracle) Score(ctx context.Context, a, b string) (float64, string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return 0, "", fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{a, b},
		Model: o.model,
	})
	if err != nil {
		return 0, "", fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != 2 {
		return 0, "", fmt.Errorf("expected 2 embeddings, got %d", len(resp.Data))
	}

	score := cosine(resp.Data[0].Embedding, resp.Data[1].Embedding)
	explanation := fmt.Sprintf("Embedding cosine similarity of the two finding texts is %.2f.", score)
	return score, explanation, nil
}

// cosine returns the cosine similarity of two vectors clamped to [0,1].
// Mismatched or zero vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
