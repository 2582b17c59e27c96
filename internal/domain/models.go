package domain

import (
	"fmt"
	"math"
	"time"
)

// AssetClass categorizes a portfolio position
type AssetClass string

const (
	AssetClassEquity AssetClass = "EQUITY"
	AssetClassBond   AssetClass = "BOND"
	AssetClassCash   AssetClass = "CASH"
)

// Observation is a single (timestamp, value) point in a time series
type Observation struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// TimeSeries is an ordered sequence of observations for one instrument.
// Timestamps are strictly increasing. Immutable once constructed.
type TimeSeries struct {
	instrument   string
	observations []Observation
}

// NewTimeSeries validates and constructs a time series.
// Rejects non-finite values and timestamps that are not strictly increasing
// (the upstream adapter is expected to have deduplicated already, so a
// duplicate here is an error rather than something to drop silently).
func NewTimeSeries(instrument string, observations []Observation) (TimeSeries, error) {
	for i, obs := range observations {
		if math.IsNaN(obs.Value) || math.IsInf(obs.Value, 0) {
			return TimeSeries{}, fmt.Errorf("observation %d for %s is not finite", i, instrument)
		}
		if i > 0 && !obs.Timestamp.After(observations[i-1].Timestamp) {
			return TimeSeries{}, fmt.Errorf("timestamps for %s not strictly increasing at index %d", instrument, i)
		}
	}

	copied := make([]Observation, len(observations))
	copy(copied, observations)

	return TimeSeries{
		instrument:   instrument,
		observations: copied,
	}, nil
}

// Instrument returns the instrument identifier
func (ts TimeSeries) Instrument() string {
	return ts.instrument
}

// Len returns the number of observations
func (ts TimeSeries) Len() int {
	return len(ts.observations)
}

// Observations returns a copy of all observations
func (ts TimeSeries) Observations() []Observation {
	out := make([]Observation, len(ts.observations))
	copy(out, ts.observations)
	return out
}

// Values returns a copy of the observation values in order
func (ts TimeSeries) Values() []float64 {
	out := make([]float64, len(ts.observations))
	for i, obs := range ts.observations {
		out[i] = obs.Value
	}
	return out
}

// Last returns the most recent observation, or false if the series is empty
func (ts TimeSeries) Last() (Observation, bool) {
	if len(ts.observations) == 0 {
		return Observation{}, false
	}
	return ts.observations[len(ts.observations)-1], true
}

// Window returns a new series restricted to observations at or after cutoff
func (ts TimeSeries) Window(cutoff time.Time) TimeSeries {
	start := 0
	for start < len(ts.observations) && ts.observations[start].Timestamp.Before(cutoff) {
		start++
	}

	copied := make([]Observation, len(ts.observations)-start)
	copy(copied, ts.observations[start:])

	return TimeSeries{
		instrument:   ts.instrument,
		observations: copied,
	}
}

// CashFlow is a single bond cash flow: amount paid at time (in years)
type CashFlow struct {
	Time   float64 `json:"time"`
	Amount float64 `json:"amount"`
}

// Position represents one portfolio position used for risk aggregation.
// CashFlows is only populated for bond positions and may legitimately be
// missing, which degrades (not fails) the risk layer.
type Position struct {
	Symbol      string     `json:"symbol"`
	AssetClass  AssetClass `json:"asset_class"`
	Weight      float64    `json:"weight"`
	MarketValue float64    `json:"market_value"`
	CashFlows   []CashFlow `json:"cash_flows,omitempty"`
}

// IsBond reports whether the position is a bond position
func (p Position) IsBond() bool {
	return p.AssetClass == AssetClassBond
}
