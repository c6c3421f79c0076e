package backend

import (
	"time"

	"github.com/shreyachakravarty07/AgentTrace/pkg/generation"
)

// Options describes the generator chain built by New.
type Options struct {
	Config
	RequestsPerSecond float64
	Burst             int
	// Optional; nil disables caching.
	Cache    Cache
	CacheTTL time.Duration
}

// New wires the OpenAI client behind rate limiting, the optional cache and
// the exclusive worker. Callers must Stop the returned generator.
func New(opts Options, logger Logger) *Exclusive {
	var gen generation.Generator = NewRateLimited(NewOpenAIClient(opts.Config, logger), opts.RequestsPerSecond, opts.Burst)
	if opts.Cache != nil {
		gen = NewCached(gen, opts.Cache, opts.CacheTTL, logger)
	}
	return NewExclusive(gen, logger)
}
