package formulas

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// MeanReversionFit holds the raw OLS estimates for a discretized
// mean-reverting short-rate process dr = kappa*(theta - r)*dt + sigma*dW.
// The regression is: delta_r = alpha + beta*r_prev + eps, with
// kappa = -beta/dt, theta = -alpha/beta, sigma = stddev(eps)/sqrt(dt).
type MeanReversionFit struct {
	Speed      float64 // kappa, per year
	Mean       float64 // theta, long-run level
	Volatility float64 // sigma, annualized
	R2         float64 // coefficient of determination of the regression
}

// FitMeanReversion regresses consecutive changes against prior levels.
// dt is the observation spacing in years (1/252 for daily series).
// The caller enforces its own minimum-observation policy; this function
// only rejects inputs the regression itself cannot handle.
func FitMeanReversion(levels []float64, dt float64) (MeanReversionFit, error) {
	if dt <= 0 {
		return MeanReversionFit{}, fmt.Errorf("dt must be positive, got %v", dt)
	}
	if len(levels) < 3 {
		return MeanReversionFit{}, fmt.Errorf("need at least 3 levels, got %d", len(levels))
	}

	n := len(levels) - 1
	xs := make([]float64, n) // prior level
	ys := make([]float64, n) // change
	for i := 0; i < n; i++ {
		xs[i] = levels[i]
		ys[i] = levels[i+1] - levels[i]
	}

	// A flat level series carries no information about reversion
	if StdDev(xs) == 0 {
		return MeanReversionFit{}, fmt.Errorf("level series is constant")
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return MeanReversionFit{}, fmt.Errorf("regression produced NaN coefficients")
	}

	residuals := make([]float64, n)
	for i := 0; i < n; i++ {
		residuals[i] = ys[i] - (alpha + beta*xs[i])
	}

	fit := MeanReversionFit{
		Speed:      -beta / dt,
		Volatility: StdDev(residuals) / math.Sqrt(dt),
		R2:         stat.RSquared(xs, ys, nil, alpha, beta),
	}

	// theta = -alpha/beta; undefined when the slope vanishes
	if beta != 0 {
		fit.Mean = -alpha / beta
	}

	return fit, nil
}

// ExpectedRate is the analytic conditional mean of a mean-reverting rate:
// E[r(t)] = r0*exp(-kappa*t) + theta*(1 - exp(-kappa*t))
func ExpectedRate(r0, kappa, theta, t float64) float64 {
	decay := math.Exp(-kappa * t)
	return r0*decay + theta*(1-decay)
}

// RateStdDev is the analytic conditional standard deviation:
// Var[r(t)] = sigma^2/(2*kappa) * (1 - exp(-2*kappa*t))
func RateStdDev(kappa, sigma, t float64) float64 {
	if kappa <= 0 {
		return 0
	}
	variance := (sigma * sigma / (2 * kappa)) * (1 - math.Exp(-2*kappa*t))
	return math.Sqrt(variance)
}

// HalfLife is the time for a deviation from the long-run mean to decay by
// half: ln(2)/kappa
func HalfLife(kappa float64) float64 {
	if kappa <= 0 {
		return 0
	}
	return math.Ln2 / kappa
}

// ZeroCouponPrice is the closed-form zero-coupon bond price under the
// calibrated short-rate model:
//
//	B(t) = (1 - exp(-kappa*t)) / kappa
//	A(t) = exp((theta - sigma^2/(2*kappa^2))*(B - t) - sigma^2*B^2/(4*kappa))
//	P    = A * exp(-B * r0)
func ZeroCouponPrice(r0, kappa, theta, sigma, t float64) float64 {
	if kappa <= 0 || t < 0 {
		return 0
	}
	if t == 0 {
		return 1
	}
	b := (1 - math.Exp(-kappa*t)) / kappa
	a := math.Exp((theta-sigma*sigma/(2*kappa*kappa))*(b-t) - (sigma*sigma/(4*kappa))*b*b)
	return a * math.Exp(-b*r0)
}
