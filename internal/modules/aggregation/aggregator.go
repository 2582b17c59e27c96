package aggregation

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/vantage/internal/config"
	"github.com/aristath/vantage/internal/domain"
	"github.com/rs/zerolog"
)

// Aggregator merges per-layer outcomes into one AnalysisBundle. Layers
// always appear in canonical order, so the bundle is identical for
// identical inputs no matter which layer finished first.
type Aggregator struct {
	policy config.AggregationPolicy
	log    zerolog.Logger
}

// NewAggregator creates an aggregator with the given layer weights.
func NewAggregator(policy config.AggregationPolicy, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		policy: policy,
		log:    log.With().Str("component", "aggregator").Logger(),
	}
}

// Aggregate validates every outcome, fills the canonical layer slots,
// and computes the composite. A layer's effective weight is its policy
// weight times its confidence, so degraded layers still participate at
// reduced strength and a zero-confidence layer contributes exactly
// nothing. Only an empty effective weight sum is fatal: that means no
// layer produced a usable signal and no report can be written.
func (a *Aggregator) Aggregate(outcomes []Outcome, generatedAt time.Time) (domain.AnalysisBundle, error) {
	const op = "aggregate"

	byName := make(map[domain.LayerName]domain.LayerScore, len(outcomes))
	for _, out := range outcomes {
		if !knownLayer(out.Layer) {
			a.log.Warn().Str("layer", string(out.Layer)).Msg("Dropping outcome for unknown layer")
			continue
		}
		byName[out.Layer] = a.normalize(out, generatedAt)
	}

	layers := make([]domain.LayerScore, 0, len(domain.CanonicalLayerOrder))
	for _, name := range domain.CanonicalLayerOrder {
		ls, ok := byName[name]
		if !ok {
			ls = domain.UnavailableLayerScore(name, generatedAt, domain.ReasonMissingData)
		}
		layers = append(layers, ls)
	}

	var weightedSum, effectiveWeight, totalWeight float64
	for _, ls := range layers {
		w := a.policy.LayerWeight(string(ls.Layer))
		totalWeight += w
		if !ls.Available() || ls.Score == nil || ls.Confidence == nil {
			continue
		}
		eff := w * (*ls.Confidence)
		weightedSum += eff * (*ls.Score)
		effectiveWeight += eff
	}

	if effectiveWeight == 0 {
		return domain.AnalysisBundle{}, domain.NewNoUsableSignal(op, "no layer contributed a usable signal")
	}

	bundle := domain.AnalysisBundle{
		GeneratedAt:         generatedAt,
		Layers:              layers,
		CompositeScore:      weightedSum / effectiveWeight,
		CompositeConfidence: effectiveWeight / totalWeight,
	}

	a.log.Info().
		Float64("composite_score", bundle.CompositeScore).
		Float64("composite_confidence", bundle.CompositeConfidence).
		Int("available_layers", len(bundle.AvailableLayers())).
		Msg("Aggregated analysis bundle")

	return bundle, nil
}

// normalize converts one outcome into the LayerScore recorded in the
// bundle. Failures become unavailable entries carrying a reason code;
// out-of-contract values from a layer are that layer's failure, never
// the run's.
func (a *Aggregator) normalize(out Outcome, generatedAt time.Time) domain.LayerScore {
	if out.Err != nil {
		return domain.UnavailableLayerScore(out.Layer, generatedAt, domain.ReasonOf(out.Err))
	}

	ls := out.Score
	ls.Layer = out.Layer
	if ls.AsOf.IsZero() {
		ls.AsOf = generatedAt
	}

	if err := validateLayerScore(ls); err != nil {
		a.log.Warn().
			Str("layer", string(out.Layer)).
			Err(err).
			Msg("Layer returned out-of-contract score")
		return domain.UnavailableLayerScore(out.Layer, generatedAt, domain.ReasonInvalidLayerOutput)
	}
	return ls
}

// validateLayerScore enforces the layer output contract: a usable score
// in [-1,1] with a confidence in [0,1], or an explicit unavailable.
func validateLayerScore(ls domain.LayerScore) error {
	switch ls.Status {
	case domain.StatusUnavailable:
		return nil
	case domain.StatusOK, domain.StatusDegraded:
	default:
		return fmt.Errorf("unknown status %q", ls.Status)
	}

	if ls.Score == nil || ls.Confidence == nil {
		return fmt.Errorf("available layer missing score or confidence")
	}
	if math.IsNaN(*ls.Score) || *ls.Score < -1 || *ls.Score > 1 {
		return fmt.Errorf("score %v outside [-1,1]", *ls.Score)
	}
	if math.IsNaN(*ls.Confidence) || *ls.Confidence < 0 || *ls.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", *ls.Confidence)
	}
	return nil
}

func knownLayer(name domain.LayerName) bool {
	for _, known := range domain.CanonicalLayerOrder {
		if name == known {
			return true
		}
	}
	return false
}
