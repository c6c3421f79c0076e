// Package generation defines the contract of the text-generation service
// consumed by workflows and conversations.
package generation

import (
	"context"
	"fmt"

	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
)

// Generator produces text for a prompt using the given model.
// Implementations block until generation finishes or ctx is done.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, maxLength int) (string, error)
	GenerateWithTrace(ctx context.Context, model, prompt string, maxLength int) (string, []models.TokenTrace, error)
}

type noCacheKey struct{}

// WithoutCache marks ctx so that caching generators pass the request through
// to the model. Use it when a fresh sample is wanted for a prompt that may
// have been answered before.
func WithoutCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, noCacheKey{}, true)
}

// CacheDisabled reports whether ctx was marked by WithoutCache.
func CacheDisabled(ctx context.Context) bool {
	disabled, _ := ctx.Value(noCacheKey{}).(bool)
	return disabled
}

// Error reports a backend failure (model not found, resource exhaustion,
// decoding error, ...).
type Error struct {
	Model   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return fmt.Sprintf("generation with model '%s' failed: %v", e.Model, e.Cause)
	}
	if e.Cause != nil {
		return fmt.Sprintf("generation with model '%s' failed: %s: %v", e.Model, e.Message, e.Cause)
	}
	return fmt.Sprintf("generation with model '%s' failed: %s", e.Model, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError wraps cause into a generation error for model.
func NewError(model string, cause error) *Error {
	return &Error{Model: model, Cause: cause}
}

// Errorf builds a generation error with a formatted message.
func Errorf(model, format string, args ...interface{}) *Error {
	return &Error{Model: model, Message: fmt.Sprintf(format, args...)}
}

// Func adapts a plain function into a Generator without trace support;
// GenerateWithTrace returns an empty trace.
type Func func(ctx context.Context, model, prompt string, maxLength int) (string, error)

func (f Func) Generate(ctx context.Context, model, prompt string, maxLength int) (string, error) {
	return f(ctx, model, prompt, maxLength)
}

func (f Func) GenerateWithTrace(ctx context.Context, model, prompt string, maxLength int) (string, []models.TokenTrace, error) {
	out, err := f(ctx, model, prompt, maxLength)
	if err != nil {
		return "", nil, err
	}
	return out, []models.TokenTrace{}, nil
}
