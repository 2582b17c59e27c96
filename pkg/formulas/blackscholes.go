package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// BlackScholesCall prices a European call option in closed form.
// All validation (positive spot/strike/time, positive volatility) is the
// caller's responsibility; this is the raw formula.
func BlackScholesCall(spot, strike, riskFreeRate, volatility, timeToExpiry float64) float64 {
	d1, d2 := dTerms(spot, strike, riskFreeRate, volatility, timeToExpiry)
	discount := math.Exp(-riskFreeRate * timeToExpiry)
	return spot*stdNormal.CDF(d1) - strike*discount*stdNormal.CDF(d2)
}

// BlackScholesPut prices a European put via put-call parity with the call
// formula, so call - put == spot - strike*discount holds exactly rather
// than to within approximation error.
func BlackScholesPut(spot, strike, riskFreeRate, volatility, timeToExpiry float64) float64 {
	call := BlackScholesCall(spot, strike, riskFreeRate, volatility, timeToExpiry)
	discount := math.Exp(-riskFreeRate * timeToExpiry)
	return call - spot + strike*discount
}

// CallDelta is N(d1)
func CallDelta(spot, strike, riskFreeRate, volatility, timeToExpiry float64) float64 {
	d1, _ := dTerms(spot, strike, riskFreeRate, volatility, timeToExpiry)
	return stdNormal.CDF(d1)
}

// PutDelta is N(d1) - 1
func PutDelta(spot, strike, riskFreeRate, volatility, timeToExpiry float64) float64 {
	return CallDelta(spot, strike, riskFreeRate, volatility, timeToExpiry) - 1
}

// Gamma is phi(d1) / (spot * volatility * sqrt(T)), identical for calls
// and puts
func Gamma(spot, strike, riskFreeRate, volatility, timeToExpiry float64) float64 {
	d1, _ := dTerms(spot, strike, riskFreeRate, volatility, timeToExpiry)
	return stdNormal.Prob(d1) / (spot * volatility * math.Sqrt(timeToExpiry))
}

// Vega is spot * phi(d1) * sqrt(T), per unit of volatility, identical for
// calls and puts
func Vega(spot, strike, riskFreeRate, volatility, timeToExpiry float64) float64 {
	d1, _ := dTerms(spot, strike, riskFreeRate, volatility, timeToExpiry)
	return spot * stdNormal.Prob(d1) * math.Sqrt(timeToExpiry)
}

func dTerms(spot, strike, riskFreeRate, volatility, timeToExpiry float64) (d1, d2 float64) {
	volSqrtT := volatility * math.Sqrt(timeToExpiry)
	d1 = (math.Log(spot/strike) + (riskFreeRate+0.5*volatility*volatility)*timeToExpiry) / volSqrtT
	d2 = d1 - volSqrtT
	return d1, d2
}
