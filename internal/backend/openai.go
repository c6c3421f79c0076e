// Package backend provides generation services and decorators around them.
package backend

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shreyachakravarty07/AgentTrace/pkg/generation"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
)

var (
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrModelNotFound      = errors.New("model not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrEmptyCompletion    = errors.New("completion has no choices")
)

// Logger defines the logging interface for backends.
type Logger interface {
	Debugf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Config configures an OpenAIClient.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

type completionRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
	Logprobs  *int   `json:"logprobs,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Text     string `json:"text"`
		Logprobs *struct {
			Tokens        []string             `json:"tokens"`
			TokenLogprobs []*float64           `json:"token_logprobs"`
			TopLogprobs   []map[string]float64 `json:"top_logprobs"`
		} `json:"logprobs"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// OpenAIClient talks to any server exposing the OpenAI /v1/completions API
// (vLLM, llama.cpp server, Ollama, OpenAI itself).
type OpenAIClient struct {
	httpClient *resty.Client
	logger     Logger
}

func NewOpenAIClient(cfg Config, logger Logger) *OpenAIClient {
	c := &OpenAIClient{httpClient: resty.New(), logger: logger}
	c.httpClient.
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil {
				return true
			}
			return r.StatusCode() >= 500 ||
				r.StatusCode() == http.StatusTooManyRequests ||
				r.StatusCode() == http.StatusRequestTimeout
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		c.httpClient.SetAuthToken(cfg.APIKey)
	}

	c.httpClient.OnAfterResponse(func(client *resty.Client, resp *resty.Response) error {
		logger.Debugf("Completion request %s %s returned %d in %s",
			resp.Request.Method, resp.Request.URL, resp.StatusCode(), resp.Time())
		return nil
	})
	return c
}

func (c *OpenAIClient) Generate(ctx context.Context, model, prompt string, maxLength int) (string, error) {
	text, _, err := c.complete(ctx, model, prompt, maxLength, false)
	return text, err
}

// GenerateWithTrace asks for the top logprob at every position and reports
// the most likely token there with exp(logprob) as its confidence. Positions
// without top logprobs fall back to the sampled token.
func (c *OpenAIClient) GenerateWithTrace(ctx context.Context, model, prompt string, maxLength int) (string, []models.TokenTrace, error) {
	return c.complete(ctx, model, prompt, maxLength, true)
}

func (c *OpenAIClient) complete(ctx context.Context, model, prompt string, maxLength int, withTrace bool) (string, []models.TokenTrace, error) {
	req := completionRequest{Model: model, Prompt: prompt, MaxTokens: maxLength}
	if withTrace {
		one := 1
		req.Logprobs = &one
	}

	var result completionResponse
	var errResp errorResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&errResp).
		Post("/v1/completions")
	if err != nil {
		c.logger.Errorf("Completion request for model '%s' failed: %v", model, err)
		return "", nil, generation.NewError(model, errors.Wrap(err, "request failed"))
	}
	if resp.IsError() {
		return "", nil, statusError(model, resp.StatusCode(), errResp.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", nil, generation.NewError(model, ErrEmptyCompletion)
	}

	choice := result.Choices[0]
	text := stripPrompt(choice.Text, prompt)
	trace := []models.TokenTrace{}
	if withTrace && choice.Logprobs != nil {
		for i, tok := range choice.Logprobs.Tokens {
			var lp *float64
			if i < len(choice.Logprobs.TokenLogprobs) {
				lp = choice.Logprobs.TokenLogprobs[i]
			}
			if i < len(choice.Logprobs.TopLogprobs) && len(choice.Logprobs.TopLogprobs[i]) > 0 {
				var top float64
				tok, top = topToken(choice.Logprobs.TopLogprobs[i])
				lp = &top
			}
			trace = append(trace, models.TokenTrace{Token: strings.TrimSpace(tok), Confidence: confidence(lp)})
		}
	}
	return text, trace, nil
}

// stripPrompt drops a prompt echoed back at the start of the completion.
func stripPrompt(text, prompt string) string {
	if prompt != "" && strings.HasPrefix(text, prompt) {
		return strings.TrimSpace(text[len(prompt):])
	}
	return text
}

// topToken picks the most likely candidate; ties go to the smaller token so
// the result does not depend on map order.
func topToken(candidates map[string]float64) (string, float64) {
	best, bestLP := "", math.Inf(-1)
	for tok, lp := range candidates {
		if lp > bestLP || (lp == bestLP && tok < best) {
			best, bestLP = tok, lp
		}
	}
	return best, bestLP
}

func confidence(logprob *float64) float64 {
	if logprob == nil {
		return 0
	}
	return math.Max(0, math.Min(1, math.Exp(*logprob)))
}

func statusError(model string, status int, message string) error {
	var cause error
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		cause = ErrInvalidAPIKey
	case http.StatusNotFound:
		cause = ErrModelNotFound
	case http.StatusTooManyRequests:
		cause = ErrRateLimitExceeded
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		cause = ErrInvalidRequest
	default:
		cause = ErrServiceUnavailable
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &generation.Error{Model: model, Message: message, Cause: cause}
}
