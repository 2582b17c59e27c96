package macro

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/vantage/internal/config"
	"github.com/aristath/vantage/internal/domain"
	"github.com/aristath/vantage/internal/modules/calibration"
	"github.com/aristath/vantage/pkg/formulas"
	"github.com/rs/zerolog"
)

const (
	// baseConfidence is the floor for a macro read where every signal
	// sits at neutral. Each non-neutral signal adds confidencePerSignal
	// up to maxConfidence.
	baseConfidence      = 0.6
	confidencePerSignal = 0.1
	maxConfidence       = 0.9
	minConfidence       = 0.1

	// degradedPenalty scales with the share of signals that could not
	// be computed, mirroring the risk layer's missing-data handling.
	degradedPenalty = 0.25

	rsiBullish = 60.0
	rsiBearish = 40.0

	// rateLevelBand treats a projected one-year rate move inside one
	// basis point as flat.
	rateLevelBand = 1e-4
)

// Service reads the rate, volatility and equity series plus the
// calibrated rate model and produces the macro layer score: the mean of
// four directional signals, each on [-1, 1].
type Service struct {
	policy config.MacroPolicy
	log    zerolog.Logger
}

// NewService creates a macro service from policy.
func NewService(policy config.MacroPolicy, log zerolog.Logger) *Service {
	return &Service{
		policy: policy,
		log:    log.With().Str("service", "macro").Logger(),
	}
}

// Evaluate computes the macro score from whichever inputs are present.
// Signals whose inputs are missing are skipped and degrade confidence;
// the layer only errors when no input produced a signal at all.
func (s *Service) Evaluate(in Input) (domain.LayerScore, Assessment, error) {
	const op = "evaluate_macro"

	signals := make([]Signal, 0, 4)
	missing := make([]string, 0)

	rateValues := in.RateSeries.Values()
	fast := formulas.CalculateEMA(rateValues, s.policy.FastEMADays)
	slow := formulas.CalculateEMA(rateValues, s.policy.SlowEMADays)
	if fast != nil && slow != nil {
		signals = append(signals, rateTrendSignal(*fast, *slow))
	} else {
		missing = append(missing, "rate_trend")
	}

	if in.RateModel != nil {
		signals = append(signals, rateLevelSignal(in.RateModel))
	} else {
		missing = append(missing, "rate_level")
	}

	if last, ok := in.VolSeries.Last(); ok {
		signals = append(signals, s.volRegimeSignal(last.Value))
	} else {
		missing = append(missing, "vol_regime")
	}

	if rsi := formulas.CalculateRSI(in.EquitySeries.Values(), s.policy.RSIPeriod); rsi != nil {
		signals = append(signals, momentumSignal(*rsi))
	} else {
		missing = append(missing, "momentum")
	}

	if len(signals) == 0 {
		return domain.LayerScore{}, Assessment{}, domain.NewInsufficientData(op, "no market series available")
	}

	sum := 0.0
	nonNeutral := 0
	for _, sig := range signals {
		sum += sig.Value
		if sig.Value != 0 {
			nonNeutral++
		}
	}
	score := clampScore(sum / float64(len(signals)))

	confidence := baseConfidence + confidencePerSignal*float64(nonNeutral)
	if confidence > maxConfidence {
		confidence = maxConfidence
	}

	regime := "NEUTRAL"
	switch {
	case score > 0:
		regime = "BULLISH"
	case score < 0:
		regime = "BEARISH"
	}

	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	summary := fmt.Sprintf("macro regime %s (score %.2f, %d of %d signals non-neutral)",
		strings.ToLower(regime), score, nonNeutral, len(signals))

	s.log.Debug().
		Str("regime", regime).
		Float64("score", score).
		Int("signals", len(signals)).
		Int("non_neutral", nonNeutral).
		Strs("missing", missing).
		Msg("Evaluated macro layer")

	assessment := Assessment{
		Signals:       signals,
		Regime:        regime,
		Score:         score,
		Confidence:    confidence,
		MissingInputs: missing,
	}

	if len(missing) > 0 {
		confidence -= degradedPenalty * float64(len(missing)) / float64(len(signals)+len(missing))
		if confidence < minConfidence {
			confidence = minConfidence
		}
		assessment.Confidence = confidence
		ls := domain.DegradedLayerScore(domain.LayerMacro, score, confidence, asOf, domain.ReasonMissingData)
		ls.Summary = summary
		return ls, assessment, nil
	}

	ls := domain.NewLayerScore(domain.LayerMacro, score, confidence, asOf)
	ls.Summary = summary
	return ls, assessment, nil
}

// rateTrendSignal compares the fast and slow EMAs of the short rate.
// Falling rates are a tailwind for risk assets, rising rates a drag.
func rateTrendSignal(fast, slow float64) Signal {
	switch {
	case fast < slow:
		return Signal{
			Name:   "rate_trend",
			Value:  1,
			Detail: fmt.Sprintf("fast EMA %.2f%% below slow EMA %.2f%%, short rates easing", fast*100, slow*100),
		}
	case fast > slow:
		return Signal{
			Name:   "rate_trend",
			Value:  -1,
			Detail: fmt.Sprintf("fast EMA %.2f%% above slow EMA %.2f%%, short rates climbing", fast*100, slow*100),
		}
	default:
		return Signal{
			Name:   "rate_trend",
			Value:  0,
			Detail: fmt.Sprintf("fast and slow EMAs level at %.2f%%", fast*100),
		}
	}
}

// rateLevelSignal reads the calibrated model's one-year projection.
// A rate above its long-run mean is expected to revert down, which
// reads as easing ahead.
func rateLevelSignal(model *calibration.CalibratedRateModel) Signal {
	expected := model.ExpectedRate(1)
	diff := expected - model.CurrentRate

	switch {
	case diff < -rateLevelBand:
		return Signal{
			Name:   "rate_level",
			Value:  1,
			Detail: fmt.Sprintf("rate %.2f%% expected to revert down toward %.2f%%", model.CurrentRate*100, model.LongRunMean*100),
		}
	case diff > rateLevelBand:
		return Signal{
			Name:   "rate_level",
			Value:  -1,
			Detail: fmt.Sprintf("rate %.2f%% expected to revert up toward %.2f%%", model.CurrentRate*100, model.LongRunMean*100),
		}
	default:
		return Signal{
			Name:   "rate_level",
			Value:  0,
			Detail: fmt.Sprintf("rate %.2f%% near its long-run mean", model.CurrentRate*100),
		}
	}
}

// volRegimeSignal buckets the latest VIX print against the policy
// thresholds. Only the extremes carry full weight.
func (s *Service) volRegimeSignal(vix float64) Signal {
	p := s.policy
	var (
		value  float64
		regime string
	)
	switch {
	case vix < p.VIXCalm:
		value, regime = 1, "calm"
	case vix < p.VIXNormal:
		value, regime = 0.5, "normal"
	case vix < p.VIXElevated:
		value, regime = 0, "unsettled"
	case vix < p.VIXPanic:
		value, regime = -0.5, "elevated"
	default:
		value, regime = -1, "panic"
	}
	return Signal{
		Name:   "vol_regime",
		Value:  value,
		Detail: fmt.Sprintf("VIX %.1f in %s regime", vix, regime),
	}
}

// momentumSignal maps the equity index RSI to a direction
func momentumSignal(rsi float64) Signal {
	switch {
	case rsi > rsiBullish:
		return Signal{Name: "momentum", Value: 1, Detail: fmt.Sprintf("RSI %.1f bullish", rsi)}
	case rsi < rsiBearish:
		return Signal{Name: "momentum", Value: -1, Detail: fmt.Sprintf("RSI %.1f bearish", rsi)}
	default:
		return Signal{Name: "momentum", Value: 0, Detail: fmt.Sprintf("RSI %.1f neutral", rsi)}
	}
}

func clampScore(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
