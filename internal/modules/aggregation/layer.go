package aggregation

import (
	"context"

	"github.com/aristath/vantage/internal/domain"
)

// Layer is one independent analysis producer. Analyze must honor the
// context; a layer that errors, times out, or panics is recorded as
// unavailable without disturbing its peers.
type Layer interface {
	Name() domain.LayerName
	Analyze(ctx context.Context) (domain.LayerScore, error)
}

// Outcome pairs a layer with its result or its failure. Exactly one of
// Score and Err is meaningful: a non-nil Err means the layer produced
// nothing usable.
type Outcome struct {
	Layer domain.LayerName
	Score domain.LayerScore
	Err   error
}
