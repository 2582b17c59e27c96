package calibration

import (
	"time"

	"github.com/aristath/vantage/pkg/formulas"
)

// OptionType selects the side of a European option.
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// CalibratedRateModel is a fitted mean-reverting short-rate model plus
// the metadata a consumer needs to judge the fit. FitQuality is
// informational: a weak fit is reported, never silently rejected.
type CalibratedRateModel struct {
	MeanReversionSpeed float64       `json:"mean_reversion_speed"`
	LongRunMean        float64       `json:"long_run_mean"`
	Volatility         float64       `json:"volatility"`
	FitQuality         float64       `json:"fit_quality"`
	CalibrationWindow  time.Duration `json:"calibration_window"`
	Observations       int           `json:"observations"`
	CurrentRate        float64       `json:"current_rate"`
	AsOf               time.Time     `json:"as_of"`
}

// ExpectedRate projects the mean rate at the given horizon in years.
func (m CalibratedRateModel) ExpectedRate(horizonYears float64) float64 {
	return formulas.ExpectedRate(m.CurrentRate, m.MeanReversionSpeed, m.LongRunMean, horizonYears)
}

// RateStdDev returns the model's rate dispersion at the given horizon.
func (m CalibratedRateModel) RateStdDev(horizonYears float64) float64 {
	return formulas.RateStdDev(m.MeanReversionSpeed, m.Volatility, horizonYears)
}

// HalfLife returns the time in years for a rate shock to decay halfway
// back to the long-run mean.
func (m CalibratedRateModel) HalfLife() float64 {
	return formulas.HalfLife(m.MeanReversionSpeed)
}

// ZeroCouponPrice returns the model-implied price of a unit zero-coupon
// bond maturing at the given horizon in years.
func (m CalibratedRateModel) ZeroCouponPrice(maturityYears float64) float64 {
	return formulas.ZeroCouponPrice(m.CurrentRate, m.MeanReversionSpeed, m.LongRunMean, m.Volatility, maturityYears)
}

// OptionPricingInput describes one European option to value.
type OptionPricingInput struct {
	Spot         float64    `json:"spot"`
	Strike       float64    `json:"strike"`
	RiskFreeRate float64    `json:"risk_free_rate"`
	Volatility   float64    `json:"volatility"`
	TimeToExpiry float64    `json:"time_to_expiry"`
	OptionType   OptionType `json:"option_type"`
}

// OptionQuote is the priced option with its first-order sensitivities.
type OptionQuote struct {
	Price float64 `json:"price"`
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
}

// BondRiskProfile carries a bond's price sensitivities at a given yield.
type BondRiskProfile struct {
	Price           float64 `json:"price"`
	Duration        float64 `json:"duration"`
	Convexity       float64 `json:"convexity"`
	YieldToMaturity float64 `json:"yield_to_maturity"`
}
