package domain

import "time"

// LayerName identifies one of the four analysis layers
type LayerName string

const (
	LayerMacro     LayerName = "macro"
	LayerIndustry  LayerName = "industry"
	LayerRisk      LayerName = "risk"
	LayerSentiment LayerName = "sentiment"
)

// CanonicalLayerOrder is the fixed order layers appear in every bundle,
// regardless of which layer finished first. Aggregation iterates this order
// so identical inputs always produce identical output.
var CanonicalLayerOrder = []LayerName{
	LayerMacro,
	LayerIndustry,
	LayerRisk,
	LayerSentiment,
}

// LayerStatus describes how much to trust a layer's output
type LayerStatus string

const (
	// StatusOK means the layer produced a full-quality score
	StatusOK LayerStatus = "ok"
	// StatusDegraded means the layer produced a score from incomplete or
	// stale inputs; it still participates, with a reduced confidence
	StatusDegraded LayerStatus = "degraded"
	// StatusUnavailable means the layer produced nothing usable; its score
	// and confidence are absent, not zero
	StatusUnavailable LayerStatus = "unavailable"
)

// LayerScore is the normalized output of one analysis layer.
// Score is always on the [-1, 1] scale after normalization; layers that
// naturally think in [0, 1] rescale before constructing a LayerScore.
// Score and Confidence are pointers because an unavailable layer has no
// score at all - zero is a valid, meaningful score.
type LayerScore struct {
	Layer      LayerName   `json:"layer"`
	Score      *float64    `json:"score,omitempty"`
	Confidence *float64    `json:"confidence,omitempty"`
	AsOf       time.Time   `json:"as_of"`
	Status     LayerStatus `json:"status"`
	Reason     ReasonCode  `json:"reason,omitempty"`
	Summary    string      `json:"summary,omitempty"`
}

// NewLayerScore builds an ok-status score
func NewLayerScore(layer LayerName, score, confidence float64, asOf time.Time) LayerScore {
	return LayerScore{
		Layer:      layer,
		Score:      &score,
		Confidence: &confidence,
		AsOf:       asOf,
		Status:     StatusOK,
	}
}

// DegradedLayerScore builds a degraded-status score. The confidence passed
// in is the already-penalized one; the reason explains what was missing.
func DegradedLayerScore(layer LayerName, score, confidence float64, asOf time.Time, reason ReasonCode) LayerScore {
	return LayerScore{
		Layer:      layer,
		Score:      &score,
		Confidence: &confidence,
		AsOf:       asOf,
		Status:     StatusDegraded,
		Reason:     reason,
	}
}

// UnavailableLayerScore builds the placeholder recorded for a failed layer
func UnavailableLayerScore(layer LayerName, asOf time.Time, reason ReasonCode) LayerScore {
	return LayerScore{
		Layer:  layer,
		AsOf:   asOf,
		Status: StatusUnavailable,
		Reason: reason,
	}
}

// Available reports whether the layer contributes to the composite
func (ls LayerScore) Available() bool {
	return ls.Status != StatusUnavailable
}

// AnalysisBundle is the unified output of one reporting run: every layer's
// score in canonical order plus the confidence-weighted composite.
// Field names are stable; the report assembler renders this as-is.
type AnalysisBundle struct {
	GeneratedAt         time.Time    `json:"generated_at"`
	Layers              []LayerScore `json:"layers"`
	CompositeScore      float64      `json:"composite_score"`
	CompositeConfidence float64      `json:"composite_confidence"`
}

// Layer returns the score for the named layer, or false when absent
func (b AnalysisBundle) Layer(name LayerName) (LayerScore, bool) {
	for _, ls := range b.Layers {
		if ls.Layer == name {
			return ls, true
		}
	}
	return LayerScore{}, false
}

// AvailableLayers returns the names of layers that contributed to the composite
func (b AnalysisBundle) AvailableLayers() []LayerName {
	names := make([]LayerName, 0, len(b.Layers))
	for _, ls := range b.Layers {
		if ls.Available() {
			names = append(names, ls.Layer)
		}
	}
	return names
}

// UnavailableLayers returns the failed layers with their reason codes
func (b AnalysisBundle) UnavailableLayers() []LayerScore {
	out := make([]LayerScore, 0)
	for _, ls := range b.Layers {
		if !ls.Available() {
			out = append(out, ls)
		}
	}
	return out
}
