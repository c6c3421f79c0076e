package backend

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shreyachakravarty07/AgentTrace/pkg/generation"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
)

// ErrPoolStopped is returned for calls submitted after Stop.
var ErrPoolStopped = errors.New("generation pool stopped")

type jobResult struct {
	text  string
	trace []models.TokenTrace
	err   error
}

type job struct {
	ctx       context.Context
	model     string
	prompt    string
	maxLength int
	trace     bool
	result    chan jobResult
}

// Exclusive funnels every generation call through a single worker goroutine,
// so at most one call is in flight even when several workflow runs share the
// generator.
type Exclusive struct {
	next    generation.Generator
	logger  Logger
	jobs    chan job
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// NewExclusive starts the worker.
func NewExclusive(next generation.Generator, logger Logger) *Exclusive {
	e := &Exclusive{next: next, logger: logger, jobs: make(chan job)}
	e.wg.Add(1)
	go e.worker()
	return e
}

// Stop waits for the running call to finish and rejects new ones.
func (e *Exclusive) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.jobs)
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Exclusive) Generate(ctx context.Context, model, prompt string, maxLength int) (string, error) {
	r := e.submit(ctx, job{model: model, prompt: prompt, maxLength: maxLength})
	return r.text, r.err
}

func (e *Exclusive) GenerateWithTrace(ctx context.Context, model, prompt string, maxLength int) (string, []models.TokenTrace, error) {
	r := e.submit(ctx, job{model: model, prompt: prompt, maxLength: maxLength, trace: true})
	return r.text, r.trace, r.err
}

func (e *Exclusive) submit(ctx context.Context, j job) jobResult {
	j.ctx = ctx
	j.result = make(chan jobResult, 1)

	e.mu.RLock()
	if e.stopped {
		e.mu.RUnlock()
		return jobResult{err: generation.NewError(j.model, ErrPoolStopped)}
	}
	select {
	case e.jobs <- j:
		e.mu.RUnlock()
	case <-ctx.Done():
		e.mu.RUnlock()
		return jobResult{err: generation.NewError(j.model, ctx.Err())}
	}

	select {
	case r := <-j.result:
		return r
	case <-ctx.Done():
		// the worker still delivers into the buffered channel
		return jobResult{err: generation.NewError(j.model, ctx.Err())}
	}
}

func (e *Exclusive) worker() {
	defer e.wg.Done()
	for j := range e.jobs {
		if err := j.ctx.Err(); err != nil {
			e.logger.Debugf("Skipping generation for model '%s': %v", j.model, err)
			j.result <- jobResult{err: generation.NewError(j.model, err)}
			continue
		}
		var r jobResult
		if j.trace {
			r.text, r.trace, r.err = e.next.GenerateWithTrace(j.ctx, j.model, j.prompt, j.maxLength)
		} else {
			r.text, r.err = e.next.Generate(j.ctx, j.model, j.prompt, j.maxLength)
		}
		j.result <- r
	}
}
