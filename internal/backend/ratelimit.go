package backend

import (
	"context"

	"github.com/shreyachakravarty07/AgentTrace/pkg/generation"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
	"golang.org/x/time/rate"
)

// RateLimited caps the rate of calls reaching the wrapped generator. Callers
// block until a token is available or ctx is done.
type RateLimited struct {
	next    generation.Generator
	limiter *rate.Limiter
}

// NewRateLimited allows requestsPerSecond calls on average with bursts of
// up to burst calls. A non-positive rate disables limiting.
func NewRateLimited(next generation.Generator, requestsPerSecond float64, burst int) *RateLimited {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) Generate(ctx context.Context, model, prompt string, maxLength int) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", generation.NewError(model, err)
	}
	return r.next.Generate(ctx, model, prompt, maxLength)
}

func (r *RateLimited) GenerateWithTrace(ctx context.Context, model, prompt string, maxLength int) (string, []models.TokenTrace, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", nil, generation.NewError(model, err)
	}
	return r.next.GenerateWithTrace(ctx, model, prompt, maxLength)
}
