// Package conversation keeps a multi-turn exchange with a single model.
package conversation

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shreyachakravarty07/AgentTrace/pkg/generation"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
)

// ErrTurnOutOfRange is returned when replaying a turn that does not exist.
var ErrTurnOutOfRange = errors.New("invalid conversation turn index")

// Logger defines the logging interface for Conversation
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Conversation is an append-only history of turns. Replaying a turn never
// changes the history.
type Conversation struct {
	gen       generation.Generator
	logger    Logger
	model     string
	maxLength int
	history   []models.Turn
	mu        sync.RWMutex
}

func New(gen generation.Generator, logger Logger, model string, maxLength int) *Conversation {
	return &Conversation{gen: gen, logger: logger, model: model, maxLength: maxLength}
}

func (c *Conversation) Model() string {
	return c.model
}

func (c *Conversation) MaxLength() int {
	return c.maxLength
}

// AddTurn generates a response to prompt and appends the turn.
func (c *Conversation) AddTurn(ctx context.Context, prompt string) (string, error) {
	response, err := c.gen.Generate(ctx, c.model, prompt, c.maxLength)
	if err != nil {
		c.logger.Errorf("Failed to generate response for turn: %v", err)
		return "", errors.Wrap(err, "failed to add turn")
	}
	c.mu.Lock()
	c.history = append(c.history, models.Turn{Prompt: prompt, Response: response})
	n := len(c.history)
	c.mu.Unlock()
	c.logger.Infof("Turn %d added. Prompt: %s | Response: %s", n, prompt, response)
	return response, nil
}

// History returns a copy of the recorded turns.
func (c *Conversation) History() []models.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Turn(nil), c.history...)
}

// Turn returns the turn at index (zero-based).
func (c *Conversation) Turn(index int) (models.Turn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index < 0 || index >= len(c.history) {
		return models.Turn{}, errors.Wrapf(ErrTurnOutOfRange, "index %d of %d turns", index, len(c.history))
	}
	return c.history[index], nil
}

// ReplayTurn re-generates the turn at index, appending modification to its
// prompt when non-empty. Response caches are bypassed. The new response is
// returned, not recorded.
func (c *Conversation) ReplayTurn(ctx context.Context, index int, modification string) (string, error) {
	turn, err := c.Turn(index)
	if err != nil {
		return "", err
	}
	prompt := turn.Prompt
	if modification != "" {
		prompt = strings.TrimSpace(turn.Prompt + " " + modification)
	}
	// a replay samples the model again even for an unchanged prompt
	response, err := c.gen.Generate(generation.WithoutCache(ctx), c.model, prompt, c.maxLength)
	if err != nil {
		c.logger.Errorf("Failed to replay turn %d: %v", index+1, err)
		return "", errors.Wrapf(err, "failed to replay turn %d", index+1)
	}
	c.logger.Infof("Replayed turn %d with modification '%s'. New response: %s", index+1, modification, response)
	return response, nil
}

// Trace generates a response with its token-level trace without recording
// a turn.
func (c *Conversation) Trace(ctx context.Context, prompt string) (string, []models.TokenTrace, error) {
	text, trace, err := c.gen.GenerateWithTrace(ctx, c.model, prompt, c.maxLength)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to trace generation")
	}
	return text, trace, nil
}

// Reset drops the whole history.
func (c *Conversation) Reset() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}
