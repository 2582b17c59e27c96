package calibration

import (
	"fmt"
	"time"

	"github.com/aristath/vantage/internal/config"
	"github.com/aristath/vantage/internal/domain"
	"github.com/aristath/vantage/pkg/formulas"
	"github.com/rs/zerolog"
)

// Service fits the short-rate model and prices rate-sensitive
// instruments. All tunables come from the calibration policy at
// construction; the service itself is stateless and safe for
// concurrent use.
type Service struct {
	minObservations int
	timeStep        float64
	yieldShiftEps   float64
	log             zerolog.Logger
}

// NewService creates a calibration service from policy.
func NewService(policy config.CalibrationPolicy, log zerolog.Logger) *Service {
	return &Service{
		minObservations: policy.MinObservations,
		timeStep:        policy.TimeStep,
		yieldShiftEps:   policy.YieldShiftEpsilon,
		log:             log.With().Str("service", "calibration").Logger(),
	}
}

// CalibrateRateModel fits a mean-reverting short-rate model to the
// trailing window of the series. The discretized changes are regressed
// against the prior level; the slope gives the reversion speed, the
// intercept the long-run mean, and the residual spread the volatility.
func (s *Service) CalibrateRateModel(series domain.TimeSeries, window time.Duration) (CalibratedRateModel, error) {
	const op = "calibrate_rate_model"

	last, ok := series.Last()
	if !ok {
		return CalibratedRateModel{}, domain.NewInsufficientData(op, "series is empty")
	}

	if window > 0 {
		series = series.Window(last.Timestamp.Add(-window))
	}

	obs := series.Observations()
	if len(obs) < s.minObservations {
		return CalibratedRateModel{}, domain.NewInsufficientData(op,
			fmt.Sprintf("%d observations in window, need at least %d", len(obs), s.minObservations))
	}

	levels := make([]float64, len(obs))
	for i, o := range obs {
		levels[i] = o.Value
	}

	fit, err := formulas.FitMeanReversion(levels, s.timeStep)
	if err != nil {
		return CalibratedRateModel{}, domain.NewDegenerateInput(op, err.Error())
	}
	if fit.Speed <= 0 {
		return CalibratedRateModel{}, domain.NewDegenerateInput(op,
			fmt.Sprintf("mean reversion speed must be positive, fitted %.6f", fit.Speed))
	}
	if fit.Volatility < 0 {
		return CalibratedRateModel{}, domain.NewDegenerateInput(op,
			fmt.Sprintf("volatility must be non-negative, fitted %.6f", fit.Volatility))
	}

	model := CalibratedRateModel{
		MeanReversionSpeed: fit.Speed,
		LongRunMean:        fit.Mean,
		Volatility:         fit.Volatility,
		FitQuality:         fit.R2,
		CalibrationWindow:  window,
		Observations:       len(obs),
		CurrentRate:        obs[len(obs)-1].Value,
		AsOf:               obs[len(obs)-1].Timestamp,
	}

	s.log.Debug().
		Str("instrument", series.Instrument()).
		Int("observations", model.Observations).
		Float64("speed", model.MeanReversionSpeed).
		Float64("mean", model.LongRunMean).
		Float64("volatility", model.Volatility).
		Float64("fit_quality", model.FitQuality).
		Msg("Calibrated rate model")

	return model, nil
}

// PriceOption values a European option with the closed-form formula.
// Puts are derived from the call via put-call parity so that
// call - put = spot - strike*discount holds exactly.
func (s *Service) PriceOption(input OptionPricingInput) (OptionQuote, error) {
	const op = "price_option"

	if input.Spot <= 0 {
		return OptionQuote{}, domain.NewDegenerateInput(op, fmt.Sprintf("spot must be positive, got %v", input.Spot))
	}
	if input.Strike <= 0 {
		return OptionQuote{}, domain.NewDegenerateInput(op, fmt.Sprintf("strike must be positive, got %v", input.Strike))
	}
	if input.TimeToExpiry < 0 {
		return OptionQuote{}, domain.NewDegenerateInput(op, fmt.Sprintf("time to expiry must not be negative, got %v", input.TimeToExpiry))
	}
	if input.OptionType != OptionCall && input.OptionType != OptionPut {
		return OptionQuote{}, domain.NewDegenerateInput(op, fmt.Sprintf("unknown option type %q", input.OptionType))
	}
	if input.Volatility <= 0 {
		return OptionQuote{}, domain.NewDegenerateInput(op, fmt.Sprintf("volatility must be positive, got %v", input.Volatility))
	}

	if input.TimeToExpiry == 0 {
		return intrinsicQuote(input), nil
	}

	quote := OptionQuote{
		Gamma: formulas.Gamma(input.Spot, input.Strike, input.RiskFreeRate, input.Volatility, input.TimeToExpiry),
		Vega:  formulas.Vega(input.Spot, input.Strike, input.RiskFreeRate, input.Volatility, input.TimeToExpiry),
	}

	switch input.OptionType {
	case OptionCall:
		quote.Price = formulas.BlackScholesCall(input.Spot, input.Strike, input.RiskFreeRate, input.Volatility, input.TimeToExpiry)
		quote.Delta = formulas.CallDelta(input.Spot, input.Strike, input.RiskFreeRate, input.Volatility, input.TimeToExpiry)
	case OptionPut:
		quote.Price = formulas.BlackScholesPut(input.Spot, input.Strike, input.RiskFreeRate, input.Volatility, input.TimeToExpiry)
		quote.Delta = formulas.PutDelta(input.Spot, input.Strike, input.RiskFreeRate, input.Volatility, input.TimeToExpiry)
	}

	return quote, nil
}

// intrinsicQuote handles expiry: the option is worth its exercise value
// and carries no time sensitivities.
func intrinsicQuote(input OptionPricingInput) OptionQuote {
	var quote OptionQuote
	switch input.OptionType {
	case OptionCall:
		if input.Spot > input.Strike {
			quote.Price = input.Spot - input.Strike
			quote.Delta = 1
		}
	case OptionPut:
		if input.Strike > input.Spot {
			quote.Price = input.Strike - input.Spot
			quote.Delta = -1
		}
	}
	return quote
}

// ComputeBondRisk prices the cash-flow schedule at the given yield and
// measures duration and convexity by shifting the yield symmetrically
// by the policy epsilon. The epsilon is fixed at construction so the
// same inputs always reproduce the same profile.
func (s *Service) ComputeBondRisk(cashFlows []domain.CashFlow, yieldRate float64) (BondRiskProfile, error) {
	const op = "compute_bond_risk"

	if len(cashFlows) == 0 {
		return BondRiskProfile{}, domain.NewDegenerateInput(op, "bond has no cash flows")
	}

	times := make([]float64, len(cashFlows))
	amounts := make([]float64, len(cashFlows))
	for i, cf := range cashFlows {
		if cf.Time <= 0 {
			return BondRiskProfile{}, domain.NewDegenerateInput(op,
				fmt.Sprintf("cash flow %d has non-positive time %v", i, cf.Time))
		}
		times[i] = cf.Time
		amounts[i] = cf.Amount
	}

	price, err := formulas.BondPrice(times, amounts, yieldRate)
	if err != nil {
		return BondRiskProfile{}, domain.NewDegenerateInput(op, err.Error())
	}

	duration, convexity, err := formulas.DurationConvexity(times, amounts, yieldRate, s.yieldShiftEps)
	if err != nil {
		return BondRiskProfile{}, domain.NewDegenerateInput(op, err.Error())
	}

	return BondRiskProfile{
		Price:           price,
		Duration:        duration,
		Convexity:       convexity,
		YieldToMaturity: yieldRate,
	}, nil
}
