package analysis

import (
	"context"
	"errors"
	"sync/atomic"
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
	"github.com/aristath/vantage/pkg/formulas"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrRunInProgress is returned when a run is requested while another is
// still executing. Callers treat it as "try again later", not a failure.
var ErrRunInProgress = errors.New("analysis run already in progress")

// MarketData fetches daily observation series for one symbol.
type MarketData interface {
	FetchDailySeries(ctx context.Context, symbol string, lookback time.Duration) (domain.TimeSeries, error)
	FetchDailyRateSeries(ctx context.Context, symbol string, lookback time.Duration) (domain.TimeSeries, error)
}

// RunStore persists completed analysis runs.
type RunStore interface {
	Save(run repositories.Run) error
}

// Deps wires the services one analysis run coordinates.
type Deps struct {
	Policy     *config.Policy
	MarketData MarketData
	Calibrator *calibration.Service
	Macro      *macro.Service
	Industry   *industry.Service
	Risk       *risk.Service
	Sentiment  *sentiment.Service
	Runner     *aggregation.Runner
	Aggregator *aggregation.Aggregator
	Assembler  *report.Assembler
	Runs       RunStore
	Status     *status.Cache
	Events     *events.Manager
	Log        zerolog.Logger
}

// Service runs the full analysis pipeline: gather market inputs, fan
// the four layers out, aggregate, assemble the report, persist. Only
// one run executes at a time; overlapping triggers are rejected with
// ErrRunInProgress rather than queued.
type Service struct {
	deps    Deps
	log     zerolog.Logger
	running atomic.Bool
}

// NewService creates the run orchestrator.
func NewService(deps Deps) *Service {
	return &Service{
		deps: deps,
		log:  deps.Log.With().Str("service", "analysis").Logger(),
	}
}

// runInputs is everything gathered upfront for one run. Every field is
// best-effort: fetch and calibration failures leave zero values behind
// and the affected layers degrade or fail on their own terms.
type runInputs struct {
	rateSeries   domain.TimeSeries
	volSeries    domain.TimeSeries
	equitySeries domain.TimeSeries
	rateModel    *calibration.CalibratedRateModel
	positions    []domain.Position
	bondProfiles map[string]calibration.BondRiskProfile

	annualVol     float64
	indexReturn1M float64
	volLevel      float64
	shortRate     float64
}

// RunAnalysis executes one complete run and returns the assembled
// report. It fails only when no layer produced a usable signal or the
// report could not be persisted; individual layer failures are recorded
// in the bundle and the run carries on.
func (s *Service) RunAnalysis(ctx context.Context) (report.Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return report.Report{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	runID := uuid.New().String()
	generatedAt := time.Now().UTC()
	start := time.Now()

	s.log.Info().Str("run_id", runID).Msg("Starting analysis run")
	s.deps.Status.RunStarted(runID, generatedAt)
	s.deps.Events.Emit(events.RunStarted, "analysis", map[string]interface{}{
		"run_id": runID,
	})

	inputs := s.gatherInputs(ctx, generatedAt)
	outcomes := s.deps.Runner.RunAll(ctx, s.buildLayers(inputs, generatedAt))
	s.emitLayerEvents(runID, outcomes)

	bundle, err := s.deps.Aggregator.Aggregate(outcomes, generatedAt)
	if err != nil {
		s.failRun(runID, err)
		return report.Report{}, err
	}

	sizing := 1.0
	if riskScore, ok := bundle.Layer(domain.LayerRisk); ok && riskScore.Available() {
		sizing = risk.SizingFromScore(riskScore.Score)
	}

	rep := s.deps.Assembler.Assemble(runID, bundle, sizing)

	if err := s.deps.Runs.Save(repositories.Run{
		ID:                  rep.ID,
		GeneratedAt:         rep.GeneratedAt,
		Decision:            string(rep.Decision),
		TotalScore:          rep.TotalScore,
		CompositeScore:      bundle.CompositeScore,
		CompositeConfidence: bundle.CompositeConfidence,
		Bundle:              bundle,
		ReportText:          rep.Narrative,
	}); err != nil {
		s.failRun(runID, err)
		return report.Report{}, err
	}
	s.deps.Events.Emit(events.ReportPersisted, "analysis", map[string]interface{}{
		"run_id":   runID,
		"decision": string(rep.Decision),
	})

	s.deps.Status.RunCompleted(rep)
	s.deps.Events.Emit(events.RunCompleted, "analysis", map[string]interface{}{
		"run_id":               runID,
		"decision":             string(rep.Decision),
		"total_score":          rep.TotalScore,
		"composite_confidence": bundle.CompositeConfidence,
		"unavailable_layers":   len(bundle.UnavailableLayers()),
	})

	s.log.Info().
		Str("run_id", runID).
		Str("decision", string(rep.Decision)).
		Float64("total_score", rep.TotalScore).
		Dur("elapsed", time.Since(start)).
		Msg("Analysis run completed")

	return rep, nil
}

func (s *Service) failRun(runID string, err error) {
	s.log.Error().Str("run_id", runID).Err(err).Msg("Analysis run failed")
	s.deps.Status.RunFailed(runID, err)
	s.deps.Events.Emit(events.RunFailed, "analysis", map[string]interface{}{
		"run_id": runID,
		"error":  err.Error(),
		"reason": string(domain.ReasonOf(err)),
	})
}

// gatherInputs pulls every market series and derived quantity the
// layers need. Each fetch is independent; a failed one is logged and
// left empty so only the layers that need it are affected.
func (s *Service) gatherInputs(ctx context.Context, asOf time.Time) runInputs {
	policy := s.deps.Policy
	lookback := time.Duration(policy.Calibration.LookbackDays) * 24 * time.Hour

	var in runInputs

	rateSeries, err := s.deps.MarketData.FetchDailyRateSeries(ctx, policy.Macro.RateSymbol, lookback)
	if err != nil {
		s.log.Warn().Str("symbol", policy.Macro.RateSymbol).Err(err).Msg("Rate series unavailable")
	} else {
		in.rateSeries = rateSeries
	}

	volSeries, err := s.deps.MarketData.FetchDailySeries(ctx, policy.Macro.VolSymbol, lookback)
	if err != nil {
		s.log.Warn().Str("symbol", policy.Macro.VolSymbol).Err(err).Msg("Volatility series unavailable")
	} else {
		in.volSeries = volSeries
	}

	equitySeries, err := s.deps.MarketData.FetchDailySeries(ctx, policy.Macro.IndexSymbol, lookback)
	if err != nil {
		s.log.Warn().Str("symbol", policy.Macro.IndexSymbol).Err(err).Msg("Equity index series unavailable")
	} else {
		in.equitySeries = equitySeries
	}

	if in.rateSeries.Len() > 0 {
		model, err := s.deps.Calibrator.CalibrateRateModel(in.rateSeries, lookback)
		if err != nil {
			s.log.Warn().Err(err).Msg("Rate model calibration failed, layers fall back")
		} else {
			in.rateModel = &model
		}
	}

	in.positions, in.bondProfiles = s.buildBook()
	in.annualVol = s.annualizedVol(in)
	in.indexReturn1M = indexReturn1M(in.equitySeries)

	if last, ok := in.volSeries.Last(); ok {
		in.volLevel = last.Value
	}
	switch {
	case in.rateModel != nil:
		in.shortRate = in.rateModel.CurrentRate
	default:
		if last, ok := in.rateSeries.Last(); ok {
			in.shortRate = last.Value
		}
	}

	return in
}

// buildBook converts the policy portfolio into domain positions and
// computes a bond risk profile for every bond that carries a cash-flow
// schedule. A bond that fails profiling is skipped; the risk layer
// treats it as a missing schedule and degrades.
func (s *Service) buildBook() ([]domain.Position, map[string]calibration.BondRiskProfile) {
	book := s.deps.Policy.Portfolio.Positions
	positions := make([]domain.Position, 0, len(book))
	profiles := make(map[string]calibration.BondRiskProfile, len(book))

	for _, p := range book {
		pos := domain.Position{
			Symbol:      p.Symbol,
			AssetClass:  domain.AssetClass(p.AssetClass),
			Weight:      p.Weight,
			MarketValue: p.MarketValue,
		}
		for _, cf := range p.CashFlows {
			pos.CashFlows = append(pos.CashFlows, domain.CashFlow{Time: cf.Time, Amount: cf.Amount})
		}
		positions = append(positions, pos)

		if !pos.IsBond() || len(pos.CashFlows) == 0 {
			continue
		}
		profile, err := s.deps.Calibrator.ComputeBondRisk(pos.CashFlows, p.YieldToMaturity)
		if err != nil {
			s.log.Warn().Str("symbol", p.Symbol).Err(err).Msg("Bond risk profile failed, position degrades")
			continue
		}
		profiles[p.Symbol] = profile
	}

	return positions, profiles
}

// annualizedVol prefers realized volatility from the equity series and
// falls back to the implied level when the series is too short.
func (s *Service) annualizedVol(in runInputs) float64 {
	if in.equitySeries.Len() >= 2 {
		returns := formulas.CalculateReturns(in.equitySeries.Values())
		if vol := formulas.AnnualizedVolatility(returns); vol > 0 {
			return vol
		}
	}
	if last, ok := in.volSeries.Last(); ok && last.Value > 0 {
		return last.Value / 100
	}
	return 0
}

// indexReturn1M is the trailing 21-trading-day return of the index
// series, or 0 when the series is too short.
func indexReturn1M(series domain.TimeSeries) float64 {
	const tradingDays = 21
	values := series.Values()
	if len(values) < tradingDays+1 {
		return 0
	}
	prev := values[len(values)-1-tradingDays]
	if prev == 0 {
		return 0
	}
	return (values[len(values)-1] - prev) / prev
}

func (s *Service) buildLayers(in runInputs, asOf time.Time) []aggregation.Layer {
	var rateModel calibration.CalibratedRateModel
	if in.rateModel != nil {
		rateModel = *in.rateModel
	}

	return []aggregation.Layer{
		macroLayer{svc: s.deps.Macro, in: macro.Input{
			RateSeries:   in.rateSeries,
			VolSeries:    in.volSeries,
			EquitySeries: in.equitySeries,
			RateModel:    in.rateModel,
			AsOf:         asOf,
		}},
		industryLayer{svc: s.deps.Industry, in: industry.Input{
			MacroSummary:  s.marketSummary(in.volLevel),
			IndexReturn1M: in.indexReturn1M,
			VolLevel:      in.volLevel,
			ShortRate:     in.shortRate,
			AsOf:          asOf,
		}},
		riskLayer{svc: s.deps.Risk, in: risk.Input{
			Positions:     in.positions,
			RateModel:     rateModel,
			BondProfiles:  in.bondProfiles,
			AnnualizedVol: in.annualVol,
			AsOf:          asOf,
		}},
		sentimentLayer{svc: s.deps.Sentiment, in: sentiment.Input{
			Headlines: s.deps.Policy.Sentiment.HeadlineFeed,
			AsOf:      asOf,
		}},
	}
}

// marketSummary is the coarse regime descriptor handed to the industry
// prompt. It is derived from the raw volatility level, not from the
// macro layer's output, so the layers stay independent.
func (s *Service) marketSummary(volLevel float64) string {
	p := s.deps.Policy.Macro
	switch {
	case volLevel <= 0:
		return ""
	case volLevel < p.VIXCalm:
		return "calm, low-volatility market"
	case volLevel < p.VIXNormal:
		return "normal market conditions"
	case volLevel < p.VIXElevated:
		return "elevated volatility"
	case volLevel < p.VIXPanic:
		return "stressed, risk-off market"
	default:
		return "panic-level volatility"
	}
}

func (s *Service) emitLayerEvents(runID string, outcomes []aggregation.Outcome) {
	for _, out := range outcomes {
		if out.Err != nil {
			s.deps.Events.Emit(events.LayerFailed, "analysis", map[string]interface{}{
				"run_id": runID,
				"layer":  string(out.Layer),
				"reason": string(domain.ReasonOf(out.Err)),
			})
			continue
		}
		s.deps.Events.Emit(events.LayerCompleted, "analysis", map[string]interface{}{
			"run_id": runID,
			"layer":  string(out.Layer),
			"status": string(out.Score.Status),
		})
	}
}
