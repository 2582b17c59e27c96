package macro

import (
	"time"

	"github.com/aristath/vantage/internal/domain"
	"github.com/aristath/vantage/internal/modules/calibration"
)

// Input carries the market series the macro layer reads. Each series is
// fetched independently upstream; any of them may be empty when its
// source was unreachable, and RateModel is nil when calibration failed.
type Input struct {
	RateSeries   domain.TimeSeries
	VolSeries    domain.TimeSeries
	EquitySeries domain.TimeSeries
	RateModel    *calibration.CalibratedRateModel
	AsOf         time.Time
}

// Signal is one directional macro reading on the [-1, 1] scale.
// The detail string is what reports show next to the direction.
type Signal struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Detail string  `json:"detail"`
}

// Assessment is the macro layer's full working, kept alongside the
// LayerScore for reports and the status endpoint.
type Assessment struct {
	Signals       []Signal `json:"signals"`
	Regime        string   `json:"regime"`
	Score         float64  `json:"score"`
	Confidence    float64  `json:"confidence"`
	MissingInputs []string `json:"missing_inputs,omitempty"`
}
