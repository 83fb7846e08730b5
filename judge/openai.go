package judge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gpt-4o-mini"
	// DefaultTimeout bounds one judgment call.
	DefaultTimeout = 60 * time.Second

	maxRetries  = 3
	baseBackoff = 2 * time.Second
	maxBackoff  = 32 * time.Second
)

// ErrAPIKeyNotSet is returned when no OpenAI API key is available.
var ErrAPIKeyNotSet = errors.New("judge: OpenAI API key not set")

// Client produces judgments through the OpenAI chat completion API. Rate
// limit responses are retried with exponential backoff; every other failure
// surfaces to the engine, which leaves the job submitted so the evaluation
// can be triggered again.
type Client struct {
	client    openai.Client
	model     string
	timeout   time.Duration
	maxTokens int64
}

// NewClient builds a judge for the given API key and model. An empty model
// selects DefaultModel.
func NewClient(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		timeout: DefaultTimeout,
	}, nil
}

// SetTimeout overrides the per-call timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.timeout = timeout
	}
}

// SetMaxTokens caps the judgment length. Zero leaves the model default.
func (c *Client) SetMaxTokens(maxTokens int64) {
	if maxTokens >= 0 {
		c.maxTokens = maxTokens
	}
}

// Model returns the configured chat model.
func (c *Client) Model() string { return c.model }

// Judge submits the evaluation prompt and returns the raw response text.
// Temperature is pinned to zero so independent evaluators converge on the
// same verdict as often as the model allows.
func (c *Client) Judge(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(c.maxTokens)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * baseBackoff
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return "", fmt.Errorf("judge: completion failed: %w", err)
		}
		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("judge: no completion choices returned")
		}
		return completion.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("judge: retries exhausted: %w", lastErr)
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
