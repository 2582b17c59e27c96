package formulas

import (
	"fmt"
	"math"
)

// BondPrice discounts a cash-flow schedule at a flat annually-compounded
// yield: sum of amount_i / (1+y)^t_i, with t_i in years.
func BondPrice(times, amounts []float64, yieldRate float64) (float64, error) {
	if len(times) != len(amounts) {
		return 0, fmt.Errorf("times and amounts length mismatch: %d vs %d", len(times), len(amounts))
	}
	if yieldRate <= -1 {
		return 0, fmt.Errorf("yield %v implies non-positive discount base", yieldRate)
	}

	price := 0.0
	for i := range times {
		price += amounts[i] * math.Pow(1+yieldRate, -times[i])
	}
	return price, nil
}

// DurationConvexity computes modified duration and convexity via a
// symmetric finite-difference shift of the yield:
//
//	duration  = (P(y-eps) - P(y+eps)) / (2 * P(y) * eps)
//	convexity = (P(y-eps) + P(y+eps) - 2*P(y)) / (P(y) * eps^2)
//
// eps is the shift in absolute yield terms (0.0001 = one basis point).
// The same eps on the same inputs reproduces results bit-for-bit.
func DurationConvexity(times, amounts []float64, yieldRate, eps float64) (duration, convexity float64, err error) {
	if eps <= 0 {
		return 0, 0, fmt.Errorf("yield shift epsilon must be positive, got %v", eps)
	}
	if yieldRate-eps <= -1 {
		return 0, 0, fmt.Errorf("downward shift crosses -100%% yield")
	}

	base, err := BondPrice(times, amounts, yieldRate)
	if err != nil {
		return 0, 0, err
	}
	if base <= 0 {
		return 0, 0, fmt.Errorf("bond price %v is not positive", base)
	}

	up, err := BondPrice(times, amounts, yieldRate+eps)
	if err != nil {
		return 0, 0, err
	}
	down, err := BondPrice(times, amounts, yieldRate-eps)
	if err != nil {
		return 0, 0, err
	}

	duration = (down - up) / (2 * base * eps)
	convexity = (down + up - 2*base) / (base * eps * eps)
	return duration, convexity, nil
}
