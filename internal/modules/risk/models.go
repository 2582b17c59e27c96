package risk

import (
	"time"

	"github.com/aristath/vantage/internal/domain"
	"github.com/aristath/vantage/internal/modules/calibration"
)

// Input carries everything one risk assessment is computed from.
// BondProfiles is keyed by position symbol; a bond position without a
// profile degrades the assessment instead of failing it.
type Input struct {
	Positions     []domain.Position
	RateModel     calibration.CalibratedRateModel
	BondProfiles  map[string]calibration.BondRiskProfile
	AnnualizedVol float64
	AsOf          time.Time
}

// Breakdown records the sub-metrics behind one risk score, each already
// normalized to [0,1]. Reports render these alongside the layer score.
type Breakdown struct {
	RateRisk             float64 `json:"rate_risk"`
	VolRisk              float64 `json:"vol_risk"`
	Concentration        float64 `json:"concentration"`
	RiskLevel            float64 `json:"risk_level"`
	PortfolioDuration    float64 `json:"portfolio_duration"`
	TotalValue           float64 `json:"total_value"`
	ValueAtRisk          float64 `json:"value_at_risk"`
	ConditionalVaR       float64 `json:"conditional_var"`
	MissingCashFlowShare float64 `json:"missing_cash_flow_share"`
	PositionSizeFactor   float64 `json:"position_size_factor"`
}

// PositionSizeFactor maps a risk level to a sizing multiplier for the
// report's allocation guidance. Calmer books size up, stressed books
// size down.
func PositionSizeFactor(riskLevel float64) float64 {
	switch {
	case riskLevel < 0.40:
		return 1.2
	case riskLevel < 0.60:
		return 1.0
	case riskLevel < 0.80:
		return 0.7
	default:
		return 0.4
	}
}

// SizingFromScore recovers the sizing multiplier from a published risk
// layer score. The layer maps risk level L to score 1-2L, so the level
// is (1-score)/2. A missing risk layer sizes neutrally.
func SizingFromScore(score *float64) float64 {
	if score == nil {
		return 1.0
	}
	return PositionSizeFactor((1 - *score) / 2)
}
