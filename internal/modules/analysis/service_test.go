package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/vantage/internal/config"
	"github.com/aristath/vantage/internal/database/repositories"
	"github.com/aristath/vantage/internal/domain"
	"github.com/aristath/vantage/internal/events"
	"github.com/aristath/vantage/internal/modules/aggregation"
	"github.com/aristath/vantage/internal/modules/calibration"
	"github.com/aristath/vantage/internal/modules/industry"
	"github.com/aristath/vantage/internal/modules/macro"
	"github.com/aristath/vantage/internal/modules/report"
	"github.com/aristath/vantage/internal/modules/risk"
	"github.com/aristath/vantage/internal/modules/sentiment"
	"github.com/aristath/vantage/internal/modules/status"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// stubMarket serves canned series per symbol, or a shared error.
type stubMarket struct {
	series map[string]domain.TimeSeries
	err    error
}

func (m stubMarket) FetchDailySeries(_ context.Context, symbol string, _ time.Duration) (domain.TimeSeries, error) {
	return m.lookup(symbol)
}

func (m stubMarket) FetchDailyRateSeries(_ context.Context, symbol string, _ time.Duration) (domain.TimeSeries, error) {
	return m.lookup(symbol)
}

func (m stubMarket) lookup(symbol string) (domain.TimeSeries, error) {
	if m.err != nil {
		return domain.TimeSeries{}, m.err
	}
	ts, ok := m.series[symbol]
	if !ok {
		return domain.TimeSeries{}, errors.New("unknown symbol")
	}
	return ts, nil
}

// blockingMarket parks the first fetch until released, so a second run
// can be triggered while the first is demonstrably still inside.
type blockingMarket struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (m *blockingMarket) FetchDailyRateSeries(context.Context, string, time.Duration) (domain.TimeSeries, error) {
	m.once.Do(func() {
		close(m.started)
		<-m.release
	})
	return domain.TimeSeries{}, errors.New("feed down")
}

func (m *blockingMarket) FetchDailySeries(context.Context, string, time.Duration) (domain.TimeSeries, error) {
	return domain.TimeSeries{}, errors.New("feed down")
}

// memoryStore captures saved runs in memory.
type memoryStore struct {
	saved []repositories.Run
	err   error
}

func (s *memoryStore) Save(run repositories.Run) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, run)
	return nil
}

func dailySeries(t *testing.T, symbol string, values []float64) domain.TimeSeries {
	t.Helper()
	base := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	obs := make([]domain.Observation, len(values))
	for i, v := range values {
		obs[i] = domain.Observation{Timestamp: base.AddDate(0, 0, i), Value: v}
	}
	ts, err := domain.NewTimeSeries(symbol, obs)
	assert.NoError(t, err)
	return ts
}

// revertingRates generates a noise-free mean-reverting path so the
// calibration step succeeds deterministically.
func revertingRates(n int) []float64 {
	const (
		speed = 0.5
		mean  = 0.03
		dt    = 1.0 / 252.0
	)
	levels := make([]float64, n)
	levels[0] = 0.05
	for i := 1; i < n; i++ {
		levels[i] = levels[i-1] + speed*(mean-levels[i-1])*dt
	}
	return levels
}

func trendingPrices(n int) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		wiggle := 0.3
		if i%2 == 1 {
			wiggle = -0.3
		}
		prices[i] = 400 + 0.4*float64(i) + wiggle
	}
	return prices
}

func flatLevels(n int, level float64) []float64 {
	levels := make([]float64, n)
	for i := range levels {
		levels[i] = level
	}
	return levels
}

func newTestService(t *testing.T, market MarketData, store RunStore, policy *config.Policy) (*Service, *status.Cache) {
	t.Helper()
	log := zerolog.Nop()
	cache := status.NewCache(log)

	svc := NewService(Deps{
		Policy:     policy,
		MarketData: market,
		Calibrator: calibration.NewService(policy.Calibration, log),
		Macro:      macro.NewService(policy.Macro, log),
		Industry:   industry.NewService(nil, log),
		Risk:       risk.NewService(policy.Risk, log),
		Sentiment:  sentiment.NewService(nil, policy.Sentiment, log),
		Runner:     aggregation.NewRunner(time.Duration(policy.Aggregation.LayerTimeoutSeconds)*time.Second, log),
		Aggregator: aggregation.NewAggregator(policy.Aggregation, log),
		Assembler:  report.NewAssembler(policy.Report, log),
		Runs:       store,
		Status:     cache,
		Events:     events.NewManager(log),
		Log:        log,
	})
	return svc, cache
}

func TestService_RunAnalysis_FullPipeline(t *testing.T) {
	policy := config.NewDefaultPolicy()
	policy.Sentiment.HeadlineFeed = []string{
		"Stocks rally to a record on strong earnings",
		"Analysts see continued growth ahead",
	}

	market := stubMarket{series: map[string]domain.TimeSeries{
		policy.Macro.RateSymbol:  dailySeries(t, policy.Macro.RateSymbol, revertingRates(252)),
		policy.Macro.VolSymbol:   dailySeries(t, policy.Macro.VolSymbol, flatLevels(70, 18)),
		policy.Macro.IndexSymbol: dailySeries(t, policy.Macro.IndexSymbol, trendingPrices(70)),
	}}
	store := &memoryStore{}

	svc, cache := newTestService(t, market, store, policy)
	rep, err := svc.RunAnalysis(context.Background())

	assert.NoError(t, err)
	assert.NotEmpty(t, rep.ID)
	assert.NotEmpty(t, rep.Decision)
	assert.Len(t, rep.Bundle.Layers, 4)
	assert.Empty(t, rep.Bundle.UnavailableLayers(), "every layer has a source in this scenario")
	assert.Greater(t, rep.Bundle.CompositeConfidence, 0.0)
	assert.LessOrEqual(t, rep.Bundle.CompositeConfidence, 1.0)
	assert.Contains(t, []float64{1.2, 1.0, 0.7, 0.4}, rep.PositionSizing)

	if assert.Len(t, store.saved, 1) {
		assert.Equal(t, rep.ID, store.saved[0].ID)
		assert.Equal(t, string(rep.Decision), store.saved[0].Decision)
		assert.Len(t, store.saved[0].Bundle.Layers, 4)
	}

	snap := cache.Snapshot()
	assert.False(t, snap.Running)
	assert.Equal(t, rep.ID, snap.LastRunID)
	assert.Equal(t, string(rep.Decision), snap.LastDecision)
	assert.Empty(t, snap.LastError)
}

func TestService_RunAnalysis_ToleratesMissingMarketData(t *testing.T) {
	policy := config.NewDefaultPolicy()

	market := stubMarket{err: errors.New("feed down")}
	store := &memoryStore{}

	svc, _ := newTestService(t, market, store, policy)
	rep, err := svc.RunAnalysis(context.Background())

	assert.NoError(t, err, "industry playbook and policy book keep the run alive")
	assert.Len(t, rep.Bundle.Layers, 4)

	available := rep.Bundle.AvailableLayers()
	assert.Contains(t, available, domain.LayerIndustry)
	assert.Contains(t, available, domain.LayerRisk)

	macroScore, ok := rep.Bundle.Layer(domain.LayerMacro)
	assert.True(t, ok)
	assert.Equal(t, domain.StatusUnavailable, macroScore.Status)

	sentimentScore, ok := rep.Bundle.Layer(domain.LayerSentiment)
	assert.True(t, ok)
	assert.Equal(t, domain.StatusUnavailable, sentimentScore.Status)

	assert.Len(t, rep.Unavailable, 2)
	assert.Len(t, store.saved, 1)
}

func TestService_RunAnalysis_PersistFailureAborts(t *testing.T) {
	policy := config.NewDefaultPolicy()

	market := stubMarket{err: errors.New("feed down")}
	store := &memoryStore{err: errors.New("disk full")}

	svc, cache := newTestService(t, market, store, policy)
	_, err := svc.RunAnalysis(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	snap := cache.Snapshot()
	assert.False(t, snap.Running)
	assert.Contains(t, snap.LastError, "disk full")
}

func TestService_RunAnalysis_RejectsOverlappingRuns(t *testing.T) {
	policy := config.NewDefaultPolicy()

	market := &blockingMarket{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	store := &memoryStore{}

	svc, _ := newTestService(t, market, store, policy)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.RunAnalysis(context.Background())
		assert.NoError(t, err)
	}()

	<-market.started
	_, err := svc.RunAnalysis(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(market.release)
	<-done

	_, err = svc.RunAnalysis(context.Background())
	assert.NoError(t, err, "the guard releases once the first run finishes")
}

func TestSizingMatchesRiskBreakdown(t *testing.T) {
	policy := config.NewDefaultPolicy()

	market := stubMarket{series: map[string]domain.TimeSeries{
		policy.Macro.RateSymbol:  dailySeries(t, policy.Macro.RateSymbol, revertingRates(252)),
		policy.Macro.VolSymbol:   dailySeries(t, policy.Macro.VolSymbol, flatLevels(70, 18)),
		policy.Macro.IndexSymbol: dailySeries(t, policy.Macro.IndexSymbol, trendingPrices(70)),
	}}
	store := &memoryStore{}

	svc, _ := newTestService(t, market, store, policy)
	rep, err := svc.RunAnalysis(context.Background())
	assert.NoError(t, err)

	riskScore, ok := rep.Bundle.Layer(domain.LayerRisk)
	assert.True(t, ok)
	assert.True(t, riskScore.Available())
	assert.Equal(t, risk.SizingFromScore(riskScore.Score), rep.PositionSizing)
}
