package claude

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Client wraps the Anthropic API behind a circuit breaker. Three
// consecutive failures open the circuit for a minute, so a degraded
// upstream fails fast instead of eating the layer timeout on every run.
type Client struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	breaker     *gobreaker.CircuitBreaker
	log         zerolog.Logger
}

// NewClient creates a Claude client. Extra request options are passed
// through to the SDK, which lets tests redirect the base URL.
func NewClient(apiKey, model string, log zerolog.Logger, opts ...option.RequestOption) *Client {
	logger := log.With().Str("client", "claude").Logger()

	settings := gobreaker.Settings{
		Name:        "claude",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}

	allOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)

	return &Client{
		client:      anthropic.NewClient(allOpts...),
		model:       model,
		maxTokens:   1024,
		temperature: 0.2,
		breaker:     gobreaker.NewCircuitBreaker(settings),
		log:         logger,
	}
}

// Complete sends one prompt and returns the concatenated text of the
// reply. Calls made while the circuit is open fail immediately.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.complete(ctx, system, prompt)
	})
	if err != nil {
		c.log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("Completion failed")
		return "", err
	}

	text := result.(string)
	c.log.Debug().
		Int("response_length", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("Completion succeeded")
	return text, nil
}

func (c *Client) complete(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude API call failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text content in model response")
	}
	return sb.String(), nil
}

// Healthy sends a one-token ping through the breaker so scheduled
// health checks surface upstream trouble before the next analysis run.
func (c *Client) Healthy(ctx context.Context) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: 1,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
			},
		}
		if _, err := c.client.Messages.New(ctx, params); err != nil {
			return nil, fmt.Errorf("claude health probe failed: %w", err)
		}
		return nil, nil
	})
	return err
}

// BreakerState reports the circuit state for the status endpoint.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}
