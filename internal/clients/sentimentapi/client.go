package sentimentapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Payload is what the news sentiment service returns. Score and
// Confidence are optional: some deployments only publish raw headlines
// and leave scoring to the consumer.
type Payload struct {
	Score      *float64  `json:"score,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	AsOf       time.Time `json:"as_of"`
	Headlines  []string  `json:"headlines,omitempty"`
}

// Client fetches news sentiment from the configured endpoint. The
// endpoint is optional infrastructure; callers treat any failure here
// as a normal degraded path, so the breaker only covers repeated
// failures to keep runs fast when the service is down.
type Client struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewClient creates a sentiment client for the given base URL.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	logger := log.With().Str("client", "sentiment").Logger()

	settings := gobreaker.Settings{
		Name:        "sentiment",
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

	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     logger,
	}
}

// Configured reports whether an endpoint was provided at all.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Fetch returns the latest sentiment payload.
func (c *Client) Fetch(ctx context.Context) (Payload, error) {
	if !c.Configured() {
		return Payload{}, fmt.Errorf("sentiment endpoint not configured")
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		return Payload{}, err
	}
	return result.(Payload), nil
}

func (c *Client) fetch(ctx context.Context) (Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/sentiment", nil)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to fetch sentiment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Payload{}, fmt.Errorf("sentiment API returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload Payload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Payload{}, fmt.Errorf("failed to parse sentiment payload: %w", err)
	}

	c.log.Debug().
		Bool("scored", payload.Score != nil).
		Int("headlines", len(payload.Headlines)).
		Msg("Fetched sentiment payload")

	return payload, nil
}

// BreakerState reports the circuit state for the status endpoint.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}
