package formulas

import "math"

// Z-scores used for parametric VaR. These are the desk's rounded working
// values, not full-precision normal quantiles; they are part of the
// reproducible output contract.
var varZScores = map[float64]float64{
	0.90: 1.28,
	0.95: 1.645,
	0.99: 2.33,
}

// ParametricVaR estimates value-at-risk for a portfolio over a horizon of
// horizonDays, from an annualized volatility, at one of the supported
// confidence levels (0.90, 0.95, 0.99). Unsupported levels fall back to
// 0.95. Returned as a positive loss amount.
func ParametricVaR(portfolioValue, annualVolatility float64, horizonDays int, confidence float64) float64 {
	if portfolioValue <= 0 || annualVolatility <= 0 || horizonDays <= 0 {
		return 0
	}

	z, ok := varZScores[confidence]
	if !ok {
		z = varZScores[0.95]
	}

	horizonVol := annualVolatility * math.Sqrt(float64(horizonDays)/252.0)
	return portfolioValue * horizonVol * z
}

// ParametricCVaR approximates expected shortfall as 1.25x the VaR at the
// same confidence level.
func ParametricCVaR(portfolioValue, annualVolatility float64, horizonDays int, confidence float64) float64 {
	return 1.25 * ParametricVaR(portfolioValue, annualVolatility, horizonDays, confidence)
}
