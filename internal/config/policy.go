package config

import (
	"fmt"
	"math"
	"os"

	"github.com/BurntSushi/toml"
)

// CalibrationPolicy tunes the rate-model fitting and bond risk math.
type CalibrationPolicy struct {
	MinObservations   int     `toml:"min_observations" json:"min_observations"`
	LookbackDays      int     `toml:"lookback_days" json:"lookback_days"`
	TimeStep          float64 `toml:"time_step" json:"time_step"`
	YieldShiftEpsilon float64 `toml:"yield_shift_epsilon" json:"yield_shift_epsilon"`
}

// RiskPolicy holds the weights and scales for the portfolio risk score.
// The three weights must sum to 1.
type RiskPolicy struct {
	RateRiskWeight            float64 `toml:"rate_risk_weight" json:"rate_risk_weight"`
	VolRiskWeight             float64 `toml:"vol_risk_weight" json:"vol_risk_weight"`
	ConcentrationWeight       float64 `toml:"concentration_weight" json:"concentration_weight"`
	RateRiskScale             float64 `toml:"rate_risk_scale" json:"rate_risk_scale"`
	VolRiskScale              float64 `toml:"vol_risk_scale" json:"vol_risk_scale"`
	DegradedConfidencePenalty float64 `toml:"degraded_confidence_penalty" json:"degraded_confidence_penalty"`
	VaRConfidence             float64 `toml:"var_confidence" json:"var_confidence"`
	VaRHorizonDays            int     `toml:"var_horizon_days" json:"var_horizon_days"`
}

// AggregationPolicy sets the per-layer weights used by the bundle
// aggregator and the timeout applied to each layer run.
type AggregationPolicy struct {
	MacroWeight         float64 `toml:"macro_weight" json:"macro_weight"`
	IndustryWeight      float64 `toml:"industry_weight" json:"industry_weight"`
	RiskWeight          float64 `toml:"risk_weight" json:"risk_weight"`
	SentimentWeight     float64 `toml:"sentiment_weight" json:"sentiment_weight"`
	LayerTimeoutSeconds int     `toml:"layer_timeout_seconds" json:"layer_timeout_seconds"`
}

// MacroPolicy configures the macro layer's inputs and thresholds.
type MacroPolicy struct {
	RateSymbol  string  `toml:"rate_symbol" json:"rate_symbol"`
	VolSymbol   string  `toml:"vol_symbol" json:"vol_symbol"`
	IndexSymbol string  `toml:"index_symbol" json:"index_symbol"`
	FastEMADays int     `toml:"fast_ema_days" json:"fast_ema_days"`
	SlowEMADays int     `toml:"slow_ema_days" json:"slow_ema_days"`
	RSIPeriod   int     `toml:"rsi_period" json:"rsi_period"`
	VIXCalm     float64 `toml:"vix_calm" json:"vix_calm"`
	VIXNormal   float64 `toml:"vix_normal" json:"vix_normal"`
	VIXElevated float64 `toml:"vix_elevated" json:"vix_elevated"`
	VIXPanic    float64 `toml:"vix_panic" json:"vix_panic"`
}

// SentimentPolicy carries the keyword lists for the fallback scorer and
// an optional local headline feed scored when no sentiment API is
// configured.
type SentimentPolicy struct {
	BullishKeywords []string `toml:"bullish_keywords" json:"bullish_keywords"`
	BearishKeywords []string `toml:"bearish_keywords" json:"bearish_keywords"`
	HeadlineFeed    []string `toml:"headline_feed" json:"headline_feed"`
}

// PortfolioCashFlow is one scheduled bond payment: amount at time in
// years from now.
type PortfolioCashFlow struct {
	Time   float64 `toml:"time" json:"time"`
	Amount float64 `toml:"amount" json:"amount"`
}

// PortfolioPosition is one position of the model book the risk layer
// assesses. Bond positions carry their own yield; the cash-flow
// schedule is optional and its absence degrades the risk layer rather
// than failing it.
type PortfolioPosition struct {
	Symbol          string              `toml:"symbol" json:"symbol"`
	AssetClass      string              `toml:"asset_class" json:"asset_class"`
	Weight          float64             `toml:"weight" json:"weight"`
	MarketValue     float64             `toml:"market_value" json:"market_value"`
	YieldToMaturity float64             `toml:"yield_to_maturity" json:"yield_to_maturity"`
	CashFlows       []PortfolioCashFlow `toml:"cash_flows" json:"cash_flows"`
}

// PortfolioPolicy is the book each reporting run assesses. Positions
// live in policy rather than a broker feed: the engine scores a model
// allocation, not a live account.
type PortfolioPolicy struct {
	Positions []PortfolioPosition `toml:"positions" json:"positions"`
}

// AllocationBand is the suggested portfolio split for one decision.
// Percentages sum to 100.
type AllocationBand struct {
	Equities float64 `toml:"equities" json:"equities"`
	Bonds    float64 `toml:"bonds" json:"bonds"`
	Cash     float64 `toml:"cash" json:"cash"`
}

// Total returns the band's percentage sum
func (b AllocationBand) Total() float64 {
	return b.Equities + b.Bonds + b.Cash
}

// ReportPolicy maps total scores to decisions and controls retention.
type ReportPolicy struct {
	StrongBuyThreshold  float64        `toml:"strong_buy_threshold" json:"strong_buy_threshold"`
	BuyThreshold        float64        `toml:"buy_threshold" json:"buy_threshold"`
	HoldThreshold       float64        `toml:"hold_threshold" json:"hold_threshold"`
	ReduceThreshold     float64        `toml:"reduce_threshold" json:"reduce_threshold"`
	StrongBuyAllocation AllocationBand `toml:"strong_buy_allocation" json:"strong_buy_allocation"`
	BuyAllocation       AllocationBand `toml:"buy_allocation" json:"buy_allocation"`
	HoldAllocation      AllocationBand `toml:"hold_allocation" json:"hold_allocation"`
	ReduceAllocation    AllocationBand `toml:"reduce_allocation" json:"reduce_allocation"`
	SellAllocation      AllocationBand `toml:"sell_allocation" json:"sell_allocation"`
	RetentionDays       int            `toml:"retention_days" json:"retention_days"`
}

// Policy is the full tunable surface of the analysis pipeline. Values
// not present in the TOML file keep their defaults, so a policy file
// only needs the sections it overrides.
type Policy struct {
	Calibration CalibrationPolicy `toml:"calibration" json:"calibration"`
	Risk        RiskPolicy        `toml:"risk" json:"risk"`
	Aggregation AggregationPolicy `toml:"aggregation" json:"aggregation"`
	Macro       MacroPolicy       `toml:"macro" json:"macro"`
	Sentiment   SentimentPolicy   `toml:"sentiment" json:"sentiment"`
	Portfolio   PortfolioPolicy   `toml:"portfolio" json:"portfolio"`
	Report      ReportPolicy      `toml:"report" json:"report"`
}

// NewDefaultPolicy creates a Policy with default settings.
func NewDefaultPolicy() *Policy {
	return &Policy{
		Calibration: CalibrationPolicy{
			MinObservations:   30,
			LookbackDays:      365,
			TimeStep:          1.0 / 252.0,
			YieldShiftEpsilon: 0.0001,
		},
		Risk: RiskPolicy{
			RateRiskWeight:            0.4,
			VolRiskWeight:             0.35,
			ConcentrationWeight:       0.25,
			RateRiskScale:             10.0,
			VolRiskScale:              2.0,
			DegradedConfidencePenalty: 0.25,
			VaRConfidence:             0.95,
			VaRHorizonDays:            1,
		},
		Aggregation: AggregationPolicy{
			MacroWeight:         0.3333,
			IndustryWeight:      0.25,
			RiskWeight:          0.25,
			SentimentWeight:     0.1667,
			LayerTimeoutSeconds: 30,
		},
		Macro: MacroPolicy{
			RateSymbol:  "^IRX",
			VolSymbol:   "^VIX",
			IndexSymbol: "SPY",
			FastEMADays: 20,
			SlowEMADays: 60,
			RSIPeriod:   14,
			VIXCalm:     15,
			VIXNormal:   20,
			VIXElevated: 25,
			VIXPanic:    35,
		},
		Sentiment: SentimentPolicy{
			BullishKeywords: []string{
				"rally", "surge", "gain", "bullish", "optimism", "upgrade",
				"beat", "strong", "growth", "record",
			},
			BearishKeywords: []string{
				"selloff", "plunge", "loss", "bearish", "fear", "downgrade",
				"miss", "weak", "recession", "crash",
			},
		},
		Portfolio: PortfolioPolicy{
			Positions: []PortfolioPosition{
				{Symbol: "SPY", AssetClass: "EQUITY", Weight: 0.35, MarketValue: 350000},
				{Symbol: "QQQ", AssetClass: "EQUITY", Weight: 0.15, MarketValue: 150000},
				{
					Symbol:          "GOVT5",
					AssetClass:      "BOND",
					Weight:          0.25,
					MarketValue:     250000,
					YieldToMaturity: 0.042,
					CashFlows: []PortfolioCashFlow{
						{Time: 1, Amount: 3},
						{Time: 2, Amount: 3},
						{Time: 3, Amount: 3},
						{Time: 4, Amount: 3},
						{Time: 5, Amount: 103},
					},
				},
				{
					Symbol:          "CORP5",
					AssetClass:      "BOND",
					Weight:          0.15,
					MarketValue:     150000,
					YieldToMaturity: 0.052,
					CashFlows: []PortfolioCashFlow{
						{Time: 1, Amount: 4},
						{Time: 2, Amount: 4},
						{Time: 3, Amount: 4},
						{Time: 4, Amount: 4},
						{Time: 5, Amount: 104},
					},
				},
				{Symbol: "CASH", AssetClass: "CASH", Weight: 0.10, MarketValue: 100000},
			},
		},
		Report: ReportPolicy{
			StrongBuyThreshold:  75,
			BuyThreshold:        60,
			HoldThreshold:       40,
			ReduceThreshold:     25,
			StrongBuyAllocation: AllocationBand{Equities: 70, Bonds: 20, Cash: 10},
			BuyAllocation:       AllocationBand{Equities: 60, Bonds: 30, Cash: 10},
			HoldAllocation:      AllocationBand{Equities: 50, Bonds: 35, Cash: 15},
			ReduceAllocation:    AllocationBand{Equities: 35, Bonds: 45, Cash: 20},
			SellAllocation:      AllocationBand{Equities: 20, Bonds: 50, Cash: 30},
			RetentionDays:       365,
		},
	}
}

// LoadPolicy reads a TOML policy file over the defaults. An empty path
// returns the defaults unchanged.
func LoadPolicy(path string) (*Policy, error) {
	policy := NewDefaultPolicy()

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("policy file not found: %s", path)
		}
		if _, err := toml.DecodeFile(path, policy); err != nil {
			return nil, fmt.Errorf("failed to parse policy file: %w", err)
		}
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}

	return policy, nil
}

// Validate checks the cross-field constraints the pipeline relies on.
func (p *Policy) Validate() error {
	if p.Calibration.MinObservations < 3 {
		return fmt.Errorf("calibration.min_observations must be at least 3, got %d", p.Calibration.MinObservations)
	}
	if p.Calibration.TimeStep <= 0 {
		return fmt.Errorf("calibration.time_step must be positive, got %v", p.Calibration.TimeStep)
	}
	if p.Calibration.YieldShiftEpsilon <= 0 {
		return fmt.Errorf("calibration.yield_shift_epsilon must be positive, got %v", p.Calibration.YieldShiftEpsilon)
	}

	weights := []float64{p.Risk.RateRiskWeight, p.Risk.VolRiskWeight, p.Risk.ConcentrationWeight}
	sum := 0.0
	for _, w := range weights {
		if w < 0 || w > 1 {
			return fmt.Errorf("risk weights must be in [0,1], got %v", w)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("risk weights must sum to 1, got %v", sum)
	}

	layerSum := p.Aggregation.MacroWeight + p.Aggregation.IndustryWeight +
		p.Aggregation.RiskWeight + p.Aggregation.SentimentWeight
	for _, w := range []float64{p.Aggregation.MacroWeight, p.Aggregation.IndustryWeight, p.Aggregation.RiskWeight, p.Aggregation.SentimentWeight} {
		if w < 0 {
			return fmt.Errorf("aggregation layer weights must be non-negative, got %v", w)
		}
	}
	if layerSum <= 0 {
		return fmt.Errorf("aggregation layer weights must sum to a positive value, got %v", layerSum)
	}
	if p.Aggregation.LayerTimeoutSeconds <= 0 {
		return fmt.Errorf("aggregation.layer_timeout_seconds must be positive, got %d", p.Aggregation.LayerTimeoutSeconds)
	}

	if p.Macro.FastEMADays <= 0 || p.Macro.SlowEMADays <= 0 || p.Macro.FastEMADays >= p.Macro.SlowEMADays {
		return fmt.Errorf("macro EMA windows must satisfy 0 < fast < slow, got %d/%d", p.Macro.FastEMADays, p.Macro.SlowEMADays)
	}
	if !(p.Macro.VIXCalm < p.Macro.VIXNormal && p.Macro.VIXNormal < p.Macro.VIXElevated && p.Macro.VIXElevated < p.Macro.VIXPanic) {
		return fmt.Errorf("macro VIX thresholds must be strictly increasing")
	}

	if len(p.Portfolio.Positions) == 0 {
		return fmt.Errorf("portfolio must hold at least one position")
	}
	weightSum := 0.0
	for i, pos := range p.Portfolio.Positions {
		if pos.Symbol == "" {
			return fmt.Errorf("portfolio position %d has an empty symbol", i)
		}
		switch pos.AssetClass {
		case "EQUITY", "BOND", "CASH":
		default:
			return fmt.Errorf("portfolio position %s has unknown asset class %q", pos.Symbol, pos.AssetClass)
		}
		if pos.Weight < 0 {
			return fmt.Errorf("portfolio position %s has negative weight %v", pos.Symbol, pos.Weight)
		}
		for _, cf := range pos.CashFlows {
			if cf.Time <= 0 {
				return fmt.Errorf("portfolio position %s has a cash flow at non-positive time %v", pos.Symbol, cf.Time)
			}
		}
		weightSum += pos.Weight
	}
	if weightSum <= 0 {
		return fmt.Errorf("portfolio weights must sum to a positive value, got %v", weightSum)
	}

	r := p.Report
	if !(r.StrongBuyThreshold > r.BuyThreshold && r.BuyThreshold > r.HoldThreshold && r.HoldThreshold > r.ReduceThreshold) {
		return fmt.Errorf("report decision thresholds must be strictly decreasing")
	}
	bands := map[string]AllocationBand{
		"strong_buy_allocation": r.StrongBuyAllocation,
		"buy_allocation":        r.BuyAllocation,
		"hold_allocation":       r.HoldAllocation,
		"reduce_allocation":     r.ReduceAllocation,
		"sell_allocation":       r.SellAllocation,
	}
	for name, band := range bands {
		if band.Equities < 0 || band.Bonds < 0 || band.Cash < 0 {
			return fmt.Errorf("report.%s has a negative component", name)
		}
		if math.Abs(band.Total()-100) > 1e-9 {
			return fmt.Errorf("report.%s must sum to 100, got %v", name, band.Total())
		}
	}

	return nil
}

// LayerWeight returns the configured weight for a named layer, or 0
// for a name the policy does not know.
func (a AggregationPolicy) LayerWeight(name string) float64 {
	switch name {
	case "macro":
		return a.MacroWeight
	case "industry":
		return a.IndustryWeight
	case "risk":
		return a.RiskWeight
	case "sentiment":
		return a.SentimentWeight
	default:
		return 0
	}
}
