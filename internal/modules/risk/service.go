package risk

import (
	"fmt"
	"time"

	"github.com/aristath/vantage/internal/config"
	"github.com/aristath/vantage/internal/domain"
	"github.com/aristath/vantage/pkg/formulas"
	"github.com/rs/zerolog"
)

// baseConfidence is the confidence of a risk score computed from
// complete position data. Missing bond schedules subtract the policy
// penalty scaled by how much of the bond book is missing.
const baseConfidence = 0.85

// Service turns positions plus a calibrated rate model into the risk
// layer's bounded score. Weights and scales come from policy at
// construction; the three sub-metric weights sum to 1.
type Service struct {
	policy config.RiskPolicy
	log    zerolog.Logger
}

// NewService creates a risk service from policy.
func NewService(policy config.RiskPolicy, log zerolog.Logger) *Service {
	return &Service{
		policy: policy,
		log:    log.With().Str("service", "risk").Logger(),
	}
}

// ComputeRiskMetrics aggregates position-level exposures into one
// bounded risk level. Each sub-metric saturates to [0,1] against its
// configured scale before weighting, so a runaway input cannot swamp
// the composite. The layer score maps risk level L to 1-2L: a calm
// book scores near +1, a stressed one near -1.
func (s *Service) ComputeRiskMetrics(in Input) (domain.LayerScore, Breakdown, error) {
	const op = "compute_risk_metrics"

	if len(in.Positions) == 0 {
		return domain.LayerScore{}, Breakdown{}, domain.NewInsufficientData(op, "no positions to assess")
	}
	if in.AnnualizedVol < 0 {
		return domain.LayerScore{}, Breakdown{}, domain.NewDegenerateInput(op,
			fmt.Sprintf("annualized volatility must be non-negative, got %v", in.AnnualizedVol))
	}

	totalWeight := 0.0
	for _, p := range in.Positions {
		if p.Weight < 0 {
			return domain.LayerScore{}, Breakdown{}, domain.NewDegenerateInput(op,
				fmt.Sprintf("position %s has negative weight %v", p.Symbol, p.Weight))
		}
		totalWeight += p.Weight
	}
	if totalWeight <= 0 {
		return domain.LayerScore{}, Breakdown{}, domain.NewDegenerateInput(op, "position weights sum to zero")
	}

	weights := make([]float64, len(in.Positions))
	for i, p := range in.Positions {
		weights[i] = p.Weight / totalWeight
	}

	var (
		portfolioDuration float64
		bondWeight        float64
		missingWeight     float64
		totalValue        float64
	)
	for i, p := range in.Positions {
		totalValue += p.MarketValue
		if !p.IsBond() {
			continue
		}
		bondWeight += weights[i]
		profile, ok := in.BondProfiles[p.Symbol]
		if !ok {
			missingWeight += weights[i]
			continue
		}
		portfolioDuration += weights[i] * profile.Duration
	}

	rateRisk := formulas.Saturate(s.policy.RateRiskScale * portfolioDuration * in.RateModel.RateStdDev(1))
	volRisk := formulas.Saturate(s.policy.VolRiskScale * in.AnnualizedVol)
	concentration := formulas.Herfindahl(weights)

	riskLevel := s.policy.RateRiskWeight*rateRisk +
		s.policy.VolRiskWeight*volRisk +
		s.policy.ConcentrationWeight*concentration

	breakdown := Breakdown{
		RateRisk:           rateRisk,
		VolRisk:            volRisk,
		Concentration:      concentration,
		RiskLevel:          riskLevel,
		PortfolioDuration:  portfolioDuration,
		TotalValue:         totalValue,
		ValueAtRisk:        formulas.ParametricVaR(totalValue, in.AnnualizedVol, s.policy.VaRHorizonDays, s.policy.VaRConfidence),
		ConditionalVaR:     formulas.ParametricCVaR(totalValue, in.AnnualizedVol, s.policy.VaRHorizonDays, s.policy.VaRConfidence),
		PositionSizeFactor: PositionSizeFactor(riskLevel),
	}
	if bondWeight > 0 {
		breakdown.MissingCashFlowShare = missingWeight / bondWeight
	}

	score := 1 - 2*riskLevel
	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	s.log.Debug().
		Float64("risk_level", riskLevel).
		Float64("rate_risk", rateRisk).
		Float64("vol_risk", volRisk).
		Float64("concentration", concentration).
		Float64("missing_cash_flow_share", breakdown.MissingCashFlowShare).
		Msg("Computed risk metrics")

	summary := fmt.Sprintf("risk level %.2f (rate %.2f, vol %.2f, concentration %.2f)",
		riskLevel, rateRisk, volRisk, concentration)

	if breakdown.MissingCashFlowShare > 0 {
		confidence := baseConfidence - s.policy.DegradedConfidencePenalty*breakdown.MissingCashFlowShare
		if confidence < 0.1 {
			confidence = 0.1
		}
		ls := domain.DegradedLayerScore(domain.LayerRisk, score, confidence, asOf, domain.ReasonMissingData)
		ls.Summary = summary
		return ls, breakdown, nil
	}

	ls := domain.NewLayerScore(domain.LayerRisk, score, baseConfidence, asOf)
	ls.Summary = summary
	return ls, breakdown, nil
}
