package industry

import "time"

// Input is the compact market context handed to the sector model.
// Numeric fields are best-effort; a zero value renders as-is in the
// prompt rather than blocking the layer.
type Input struct {
	MacroSummary  string
	IndexReturn1M float64
	VolLevel      float64
	ShortRate     float64
	AsOf          time.Time
}

// SectorView is one sector's conviction on the [0, 1] scale
type SectorView struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// Analysis is the industry layer's structured output. Source records
// whether it came from the model or the static playbook.
type Analysis struct {
	MarketCycle    string       `json:"market_cycle"`
	RotationSignal string       `json:"rotation_signal"`
	Sectors        []SectorView `json:"sectors"`
	Source         string       `json:"source,omitempty"`
}
