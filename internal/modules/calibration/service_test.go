package calibration

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/aristath/vantage/internal/config"
	"github.com/aristath/vantage/internal/domain"
	"github.com/rs/zerolog"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(config.NewDefaultPolicy().Calibration, zerolog.Nop())
}

// rateSeries builds a daily series from a generated level path.
func rateSeries(t *testing.T, levels []float64) domain.TimeSeries {
	t.Helper()
	base := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	obs := make([]domain.Observation, len(levels))
	for i, v := range levels {
		obs[i] = domain.Observation{Timestamp: base.AddDate(0, 0, i), Value: v}
	}
	series, err := domain.NewTimeSeries("^IRX", obs)
	if err != nil {
		t.Fatalf("NewTimeSeries() error = %v", err)
	}
	return series
}

// meanRevertingPath simulates the discretized process
// dr = speed*(mean - r)*dt + vol*sqrt(dt)*z.
func meanRevertingPath(r0, speed, mean, vol, dt float64, n int, rng *rand.Rand) []float64 {
	levels := make([]float64, n)
	levels[0] = r0
	for i := 1; i < n; i++ {
		prev := levels[i-1]
		shock := 0.0
		if vol > 0 {
			shock = vol * math.Sqrt(dt) * rng.NormFloat64()
		}
		levels[i] = prev + speed*(mean-prev)*dt + shock
	}
	return levels
}

func TestCalibrateRateModelExactOnNoiseFreePath(t *testing.T) {
	svc := newTestService(t)
	levels := meanRevertingPath(0.08, 0.5, 0.03, 0, 1.0/252.0, 252, nil)
	series := rateSeries(t, levels)

	model, err := svc.CalibrateRateModel(series, 0)
	if err != nil {
		t.Fatalf("CalibrateRateModel() error = %v", err)
	}

	if math.Abs(model.MeanReversionSpeed-0.5) > 1e-6 {
		t.Errorf("MeanReversionSpeed = %v, want 0.5", model.MeanReversionSpeed)
	}
	if math.Abs(model.LongRunMean-0.03) > 1e-8 {
		t.Errorf("LongRunMean = %v, want 0.03", model.LongRunMean)
	}
	if model.FitQuality < 0.999999 {
		t.Errorf("FitQuality = %v, want ~1 for a noise-free path", model.FitQuality)
	}
	if model.Observations != 252 {
		t.Errorf("Observations = %d, want 252", model.Observations)
	}
	if model.CurrentRate != levels[len(levels)-1] {
		t.Errorf("CurrentRate = %v, want last level %v", model.CurrentRate, levels[len(levels)-1])
	}
}

// Consistency: with a long window and modest noise the estimates land
// well inside a 15% band around the generating parameters. The margins
// here are several standard errors wide for this sample size, so the
// fixed seed is belt and braces rather than load-bearing.
func TestCalibrateRateModelRecoversNoisyParameters(t *testing.T) {
	const (
		trueSpeed = 0.5
		trueMean  = 0.03
		trueVol   = 0.0002
		dt        = 1.0 / 252.0
	)

	rng := rand.New(rand.NewSource(42))
	levels := meanRevertingPath(0.08, trueSpeed, trueMean, trueVol, dt, 2520, rng)
	series := rateSeries(t, levels)

	svc := newTestService(t)
	model, err := svc.CalibrateRateModel(series, 0)
	if err != nil {
		t.Fatalf("CalibrateRateModel() error = %v", err)
	}

	if model.MeanReversionSpeed < trueSpeed*0.85 || model.MeanReversionSpeed > trueSpeed*1.15 {
		t.Errorf("MeanReversionSpeed = %v, want within 15%% of %v", model.MeanReversionSpeed, trueSpeed)
	}
	if model.LongRunMean < trueMean*0.85 || model.LongRunMean > trueMean*1.15 {
		t.Errorf("LongRunMean = %v, want within 15%% of %v", model.LongRunMean, trueMean)
	}
	if model.Volatility < trueVol*0.85 || model.Volatility > trueVol*1.15 {
		t.Errorf("Volatility = %v, want within 15%% of %v", model.Volatility, trueVol)
	}
	if model.FitQuality <= 0.5 {
		t.Errorf("FitQuality = %v, want > 0.5 for this signal-to-noise ratio", model.FitQuality)
	}
}

func TestCalibrateRateModelWindowing(t *testing.T) {
	svc := newTestService(t)
	levels := meanRevertingPath(0.08, 0.5, 0.03, 0, 1.0/252.0, 120, nil)
	series := rateSeries(t, levels)

	// 45 calendar days back from the last observation keeps 46 points
	model, err := svc.CalibrateRateModel(series, 45*24*time.Hour)
	if err != nil {
		t.Fatalf("CalibrateRateModel() error = %v", err)
	}
	if model.Observations != 46 {
		t.Errorf("Observations = %d, want 46 inside the window", model.Observations)
	}
	if model.CalibrationWindow != 45*24*time.Hour {
		t.Errorf("CalibrationWindow = %v, want 45d", model.CalibrationWindow)
	}

	// A window that keeps fewer points than the policy minimum fails
	_, err = svc.CalibrateRateModel(series, 10*24*time.Hour)
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("short window error = %v, want InsufficientData", err)
	}
}

func TestCalibrateRateModelInsufficientData(t *testing.T) {
	svc := newTestService(t)

	levels := meanRevertingPath(0.05, 0.5, 0.03, 0, 1.0/252.0, 10, nil)
	_, err := svc.CalibrateRateModel(rateSeries(t, levels), 0)
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("error = %v, want InsufficientData", err)
	}

	_, err = svc.CalibrateRateModel(domain.TimeSeries{}, 0)
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("empty series error = %v, want InsufficientData", err)
	}
}

func TestCalibrateRateModelDegenerateFits(t *testing.T) {
	svc := newTestService(t)

	// A constant series has no level variation for the regression
	flat := make([]float64, 60)
	for i := range flat {
		flat[i] = 0.04
	}
	_, err := svc.CalibrateRateModel(rateSeries(t, flat), 0)
	if !errors.Is(err, domain.ErrDegenerateInput) {
		t.Errorf("flat series error = %v, want DegenerateInput", err)
	}

	// A trending (mean-fleeing) series fits a negative reversion speed
	trending := make([]float64, 60)
	trending[0] = 0.02
	for i := 1; i < len(trending); i++ {
		trending[i] = trending[i-1] * 1.02
	}
	_, err = svc.CalibrateRateModel(rateSeries(t, trending), 0)
	if !errors.Is(err, domain.ErrDegenerateInput) {
		t.Errorf("trending series error = %v, want DegenerateInput", err)
	}
}

func TestCalibratedModelProjections(t *testing.T) {
	model := CalibratedRateModel{
		MeanReversionSpeed: 0.5,
		LongRunMean:        0.03,
		Volatility:         0.01,
		CurrentRate:        0.05,
	}

	if got := model.ExpectedRate(0); math.Abs(got-0.05) > 1e-12 {
		t.Errorf("ExpectedRate(0) = %v, want current rate", got)
	}
	if got := model.ExpectedRate(200); math.Abs(got-0.03) > 1e-9 {
		t.Errorf("ExpectedRate(far) = %v, want long-run mean", got)
	}
	if got := model.HalfLife(); math.Abs(got-math.Ln2/0.5) > 1e-12 {
		t.Errorf("HalfLife() = %v, want ln2/speed", got)
	}
	if p := model.ZeroCouponPrice(5); p <= 0 || p >= 1 {
		t.Errorf("ZeroCouponPrice(5) = %v, want in (0,1) for positive rates", p)
	}
	if sd := model.RateStdDev(1); sd <= 0 {
		t.Errorf("RateStdDev(1) = %v, want positive", sd)
	}
}

func TestPriceOptionReferenceCall(t *testing.T) {
	svc := newTestService(t)

	quote, err := svc.PriceOption(OptionPricingInput{
		Spot: 100, Strike: 100, RiskFreeRate: 0.05, Volatility: 0.2, TimeToExpiry: 1, OptionType: OptionCall,
	})
	if err != nil {
		t.Fatalf("PriceOption() error = %v", err)
	}

	if math.Abs(quote.Price-10.4506) > 1e-2 {
		t.Errorf("call price = %v, want ~10.45", quote.Price)
	}
	if quote.Delta < 0.5 || quote.Delta > 1 {
		t.Errorf("call delta = %v, want in (0.5, 1) at the money with positive drift", quote.Delta)
	}
	if quote.Gamma <= 0 || quote.Vega <= 0 {
		t.Errorf("gamma = %v, vega = %v, want both positive", quote.Gamma, quote.Vega)
	}
}

func TestPriceOptionParityThroughService(t *testing.T) {
	svc := newTestService(t)

	input := OptionPricingInput{Spot: 90, Strike: 110, RiskFreeRate: 0.03, Volatility: 0.4, TimeToExpiry: 2}

	input.OptionType = OptionCall
	call, err := svc.PriceOption(input)
	if err != nil {
		t.Fatalf("call PriceOption() error = %v", err)
	}

	input.OptionType = OptionPut
	put, err := svc.PriceOption(input)
	if err != nil {
		t.Fatalf("put PriceOption() error = %v", err)
	}

	parity := 90.0 - 110.0*math.Exp(-0.03*2)
	if diff := math.Abs((call.Price - put.Price) - parity); diff > 1e-12 {
		t.Errorf("parity violated by %v", diff)
	}

	// Delta relationship: callDelta - putDelta = 1
	if diff := math.Abs((call.Delta - put.Delta) - 1); diff > 1e-12 {
		t.Errorf("delta parity violated by %v", diff)
	}
	// Gamma and vega are shared across the pair
	if call.Gamma != put.Gamma || call.Vega != put.Vega {
		t.Error("gamma/vega should be identical for call and put")
	}
}

func TestPriceOptionIntrinsicAtExpiry(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name      string
		input     OptionPricingInput
		wantPrice float64
		wantDelta float64
	}{
		{
			name:      "in the money call",
			input:     OptionPricingInput{Spot: 120, Strike: 100, Volatility: 0.2, OptionType: OptionCall},
			wantPrice: 20,
			wantDelta: 1,
		},
		{
			name:      "out of the money call",
			input:     OptionPricingInput{Spot: 80, Strike: 100, Volatility: 0.2, OptionType: OptionCall},
			wantPrice: 0,
			wantDelta: 0,
		},
		{
			name:      "in the money put",
			input:     OptionPricingInput{Spot: 80, Strike: 100, Volatility: 0.2, OptionType: OptionPut},
			wantPrice: 20,
			wantDelta: -1,
		},
		{
			name:      "at the money put",
			input:     OptionPricingInput{Spot: 100, Strike: 100, Volatility: 0.2, OptionType: OptionPut},
			wantPrice: 0,
			wantDelta: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote, err := svc.PriceOption(tt.input)
			if err != nil {
				t.Fatalf("PriceOption() error = %v", err)
			}
			if quote.Price != tt.wantPrice {
				t.Errorf("price = %v, want %v", quote.Price, tt.wantPrice)
			}
			if quote.Delta != tt.wantDelta {
				t.Errorf("delta = %v, want %v", quote.Delta, tt.wantDelta)
			}
			if quote.Gamma != 0 || quote.Vega != 0 {
				t.Errorf("gamma = %v, vega = %v, want 0 at expiry", quote.Gamma, quote.Vega)
			}
		})
	}
}

func TestPriceOptionDegenerateInputs(t *testing.T) {
	svc := newTestService(t)

	valid := OptionPricingInput{Spot: 100, Strike: 100, RiskFreeRate: 0.05, Volatility: 0.2, TimeToExpiry: 1, OptionType: OptionCall}

	tests := []struct {
		name   string
		mutate func(*OptionPricingInput)
	}{
		{name: "zero volatility", mutate: func(in *OptionPricingInput) { in.Volatility = 0 }},
		{name: "negative volatility", mutate: func(in *OptionPricingInput) { in.Volatility = -0.1 }},
		{name: "zero spot", mutate: func(in *OptionPricingInput) { in.Spot = 0 }},
		{name: "negative spot", mutate: func(in *OptionPricingInput) { in.Spot = -5 }},
		{name: "zero strike", mutate: func(in *OptionPricingInput) { in.Strike = 0 }},
		{name: "negative expiry", mutate: func(in *OptionPricingInput) { in.TimeToExpiry = -1 }},
		{name: "unknown type", mutate: func(in *OptionPricingInput) { in.OptionType = "straddle" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := valid
			tt.mutate(&input)
			quote, err := svc.PriceOption(input)
			if !errors.Is(err, domain.ErrDegenerateInput) {
				t.Errorf("error = %v, want DegenerateInput", err)
			}
			if !quoteIsZero(quote) {
				t.Errorf("quote = %+v, want zero value on error", quote)
			}
		})
	}
}

func quoteIsZero(q OptionQuote) bool {
	return q.Price == 0 && q.Delta == 0 && q.Gamma == 0 && q.Vega == 0
}

func TestComputeBondRiskZeroCoupon(t *testing.T) {
	svc := newTestService(t)

	profile, err := svc.ComputeBondRisk([]domain.CashFlow{{Time: 5, Amount: 100}}, 0.04)
	if err != nil {
		t.Fatalf("ComputeBondRisk() error = %v", err)
	}

	// Closed forms for a zero under annual compounding
	if math.Abs(profile.Duration-5.0/1.04) > 1e-3 {
		t.Errorf("Duration = %v, want ~%v", profile.Duration, 5.0/1.04)
	}
	if math.Abs(profile.Convexity-30.0/(1.04*1.04)) > 1e-2 {
		t.Errorf("Convexity = %v, want ~%v", profile.Convexity, 30.0/(1.04*1.04))
	}
	if math.Abs(profile.Price-82.19271) > 1e-4 {
		t.Errorf("Price = %v, want ~82.19271", profile.Price)
	}
	if profile.YieldToMaturity != 0.04 {
		t.Errorf("YieldToMaturity = %v, want input yield", profile.YieldToMaturity)
	}
}

func TestComputeBondRiskReproducible(t *testing.T) {
	svc := newTestService(t)
	cashFlows := []domain.CashFlow{{Time: 1, Amount: 5}, {Time: 2, Amount: 105}}

	first, err := svc.ComputeBondRisk(cashFlows, 0.05)
	if err != nil {
		t.Fatalf("ComputeBondRisk() error = %v", err)
	}
	second, err := svc.ComputeBondRisk(cashFlows, 0.05)
	if err != nil {
		t.Fatalf("ComputeBondRisk() error = %v", err)
	}

	// Fixed epsilon means bit-for-bit identical output
	if first != second {
		t.Errorf("profiles differ across runs: %+v vs %+v", first, second)
	}
}

func TestComputeBondRiskDegenerateInputs(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.ComputeBondRisk(nil, 0.05); !errors.Is(err, domain.ErrDegenerateInput) {
		t.Errorf("no cash flows: error = %v, want DegenerateInput", err)
	}

	bad := []domain.CashFlow{{Time: -1, Amount: 100}}
	if _, err := svc.ComputeBondRisk(bad, 0.05); !errors.Is(err, domain.ErrDegenerateInput) {
		t.Errorf("negative time: error = %v, want DegenerateInput", err)
	}

	cf := []domain.CashFlow{{Time: 1, Amount: 100}}
	if _, err := svc.ComputeBondRisk(cf, -1.5); !errors.Is(err, domain.ErrDegenerateInput) {
		t.Errorf("yield below -100%%: error = %v, want DegenerateInput", err)
	}
}
