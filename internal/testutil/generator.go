package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shreyachakravarty07/AgentTrace/pkg/generation"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
)

// GenerateCall records one call made to a FakeGenerator.
type GenerateCall struct {
	Model     string
	Prompt    string
	MaxLength int
}

// FakeGenerator is a deterministic generation service: its response is a
// pure function of (model, prompt). Failures can be scripted per model.
type FakeGenerator struct {
	mu      sync.Mutex
	calls   []GenerateCall
	respond func(model, prompt string) string
	fail    map[string]error
}

// NewFakeGenerator returns a generator answering "<model>: <prompt>".
func NewFakeGenerator() *FakeGenerator {
	return &FakeGenerator{
		respond: func(model, prompt string) string {
			return fmt.Sprintf("%s: %s", model, prompt)
		},
		fail: make(map[string]error),
	}
}

// WithResponse replaces the response function.
func (f *FakeGenerator) WithResponse(fn func(model, prompt string) string) *FakeGenerator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = fn
	return f
}

// FailModel makes every call for model return err.
func (f *FakeGenerator) FailModel(model string, err error) *FakeGenerator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[model] = err
	return f
}

// Calls returns the calls made so far, in order.
func (f *FakeGenerator) Calls() []GenerateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]GenerateCall(nil), f.calls...)
}

func (f *FakeGenerator) Generate(ctx context.Context, model, prompt string, maxLength int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, GenerateCall{Model: model, Prompt: prompt, MaxLength: maxLength})
	if err := ctx.Err(); err != nil {
		return "", generation.NewError(model, err)
	}
	if err, ok := f.fail[model]; ok {
		return "", err
	}
	return f.respond(model, prompt), nil
}

// GenerateWithTrace splits the response on whitespace, giving token i a
// confidence of 1/(i+1).
func (f *FakeGenerator) GenerateWithTrace(ctx context.Context, model, prompt string, maxLength int) (string, []models.TokenTrace, error) {
	text, err := f.Generate(ctx, model, prompt, maxLength)
	if err != nil {
		return "", nil, err
	}
	fields := strings.Fields(text)
	trace := make([]models.TokenTrace, 0, len(fields))
	for i, tok := range fields {
		trace = append(trace, models.TokenTrace{Token: tok, Confidence: 1 / float64(i+1)})
	}
	return text, trace, nil
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Infof(format string, args ...interface{})  {}
func (NopLogger) Errorf(format string, args ...interface{}) {}
func (NopLogger) Debugf(format string, args ...interface{}) {}
func (NopLogger) Warnf(format string, args ...interface{})  {}
