package report

import (
	"time"

	"github.com/aristath/vantage/internal/config"
	"github.com/aristath/vantage/internal/domain"
)

// Decision is the run's final call on risk-asset positioning
type Decision string

const (
	DecisionStrongBuy Decision = "STRONG_BUY"
	DecisionBuy       Decision = "BUY"
	DecisionHold      Decision = "HOLD"
	DecisionReduce    Decision = "REDUCE"
	DecisionSell      Decision = "SELL"
)

// UnavailableLayer names a layer that produced nothing this run,
// with the reason code reports surface instead of raw error text.
type UnavailableLayer struct {
	Layer  domain.LayerName  `json:"layer"`
	Reason domain.ReasonCode `json:"reason"`
}

// Report is the assembled output of one analysis run. A run with
// partial layer failures still yields a report; Unavailable lists
// what was missing.
type Report struct {
	ID             string                `json:"id"`
	GeneratedAt    time.Time             `json:"generated_at"`
	Bundle         domain.AnalysisBundle `json:"bundle"`
	Decision       Decision              `json:"decision"`
	TotalScore     float64               `json:"total_score"`
	Allocation     config.AllocationBand `json:"allocation"`
	PositionSizing float64               `json:"position_sizing"`
	Narrative      string                `json:"narrative"`
	Unavailable    []UnavailableLayer    `json:"unavailable,omitempty"`
}
