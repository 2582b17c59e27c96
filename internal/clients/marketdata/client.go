package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aristath/vantage/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Client fetches daily market time series from a Yahoo-style chart API.
// The base URL is injectable so tests can point it at a local server.
type Client struct {
	baseURL    string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	log        zerolog.Logger
}

// NewClient creates a market data client for the given base URL.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		// Public quote endpoints throttle aggressively; stay polite
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		maxRetries: 3,
		log:        log.With().Str("client", "marketdata").Logger(),
	}
}

// FetchDailySeries returns the daily close series for a symbol over the
// lookback window, deduplicated and strictly increasing in time as the
// calibrator requires.
func (c *Client) FetchDailySeries(ctx context.Context, symbol string, lookback time.Duration) (domain.TimeSeries, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1)) * time.Second
			c.log.Warn().Err(lastErr).
				Str("symbol", symbol).
				Int("attempt", attempt+1).
				Dur("wait", wait).
				Msg("Retrying market data fetch")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return domain.TimeSeries{}, ctx.Err()
			}
		}

		series, err := c.fetchChart(ctx, symbol, lookback)
		if err == nil {
			return series, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return domain.TimeSeries{}, ctx.Err()
		}
	}
	return domain.TimeSeries{}, fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}

// FetchDailyRateSeries fetches a series quoted in percent (treasury
// yield tickers like ^IRX) and rescales it to decimals for the
// calibration stack.
func (c *Client) FetchDailyRateSeries(ctx context.Context, symbol string, lookback time.Duration) (domain.TimeSeries, error) {
	series, err := c.FetchDailySeries(ctx, symbol, lookback)
	if err != nil {
		return domain.TimeSeries{}, err
	}

	obs := series.Observations()
	for i := range obs {
		obs[i].Value /= 100
	}
	return domain.NewTimeSeries(series.Instrument(), obs)
}

// chartResponse mirrors the chart API payload. Close values arrive as
// nullable entries; nil means no trade that day and is skipped.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

func (c *Client) fetchChart(ctx context.Context, symbol string, lookback time.Duration) (domain.TimeSeries, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.TimeSeries{}, err
	}

	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("range", rangeForLookback(lookback))

	reqURL := c.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.TimeSeries{}, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to mimic browser
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.TimeSeries{}, fmt.Errorf("failed to fetch chart data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.TimeSeries{}, fmt.Errorf("market data API returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.TimeSeries{}, fmt.Errorf("failed to read response body: %w", err)
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return domain.TimeSeries{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Chart.Error != nil {
		return domain.TimeSeries{}, fmt.Errorf("market data API error: %v", result.Chart.Error)
	}
	if len(result.Chart.Result) == 0 {
		return domain.TimeSeries{}, fmt.Errorf("no chart data returned for %s", symbol)
	}

	chartData := result.Chart.Result[0]
	if len(chartData.Indicators.Quote) == 0 {
		return domain.TimeSeries{}, fmt.Errorf("no quote data returned for %s", symbol)
	}
	closes := chartData.Indicators.Quote[0].Close

	obs := make([]domain.Observation, 0, len(chartData.Timestamp))
	var prev time.Time
	for i, ts := range chartData.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		stamp := time.Unix(ts, 0).UTC()
		// The calibrator requires strictly increasing timestamps; the
		// occasional duplicate bar keeps its first value
		if !prev.IsZero() && !stamp.After(prev) {
			continue
		}
		obs = append(obs, domain.Observation{Timestamp: stamp, Value: *closes[i]})
		prev = stamp
	}

	series, err := domain.NewTimeSeries(symbol, obs)
	if err != nil {
		return domain.TimeSeries{}, fmt.Errorf("invalid series for %s: %w", symbol, err)
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("observations", series.Len()).
		Msg("Fetched daily series")

	return series, nil
}

// rangeForLookback maps a duration onto the chart API's named ranges,
// rounding up so the window is never undersupplied.
func rangeForLookback(lookback time.Duration) string {
	days := int(lookback.Hours() / 24)
	switch {
	case days <= 0:
		return "1y"
	case days <= 5:
		return "5d"
	case days <= 30:
		return "1mo"
	case days <= 91:
		return "3mo"
	case days <= 182:
		return "6mo"
	case days <= 365:
		return "1y"
	case days <= 730:
		return "2y"
	case days <= 1825:
		return "5y"
	default:
		return "10y"
	}
}
