package aggregation

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/vantage/internal/domain"
	"github.com/rs/zerolog"
)

// Runner fans the analysis layers out concurrently and joins their
// outcomes. Layers share no mutable state, so no locking is needed;
// each gets its own deadline and a stuck layer is abandoned at its
// deadline rather than holding up the join.
type Runner struct {
	timeout time.Duration
	log     zerolog.Logger
}

// NewRunner creates a runner with the given per-layer timeout.
func NewRunner(timeout time.Duration, log zerolog.Logger) *Runner {
	return &Runner{
		timeout: timeout,
		log:     log.With().Str("component", "layer_runner").Logger(),
	}
}

// RunAll executes every layer concurrently and collects one Outcome per
// layer. It returns once each layer has completed, failed, or hit its
// timeout; completion order does not matter because aggregation sorts
// into canonical order afterwards.
func (r *Runner) RunAll(ctx context.Context, layers []Layer) []Outcome {
	results := make(chan Outcome, len(layers))

	for _, layer := range layers {
		go func(l Layer) {
			results <- r.runOne(ctx, l)
		}(layer)
	}

	outcomes := make([]Outcome, 0, len(layers))
	for range layers {
		outcomes = append(outcomes, <-results)
	}
	return outcomes
}

type layerResult struct {
	score domain.LayerScore
	err   error
}

// runOne runs a single layer under its own deadline. The layer body
// executes in an inner goroutine so a layer that ignores cancellation
// still cannot block the run past its deadline; its eventual result is
// discarded.
func (r *Runner) runOne(ctx context.Context, l Layer) Outcome {
	name := l.Name()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resultCh := make(chan layerResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error().
					Str("layer", string(name)).
					Interface("panic", rec).
					Msg("Layer panicked")
				resultCh <- layerResult{err: fmt.Errorf("layer %s panicked: %v", name, rec)}
			}
		}()
		score, err := l.Analyze(ctx)
		resultCh <- layerResult{score: score, err: err}
	}()

	start := time.Now()
	select {
	case res := <-resultCh:
		if res.err != nil {
			r.log.Warn().
				Str("layer", string(name)).
				Dur("elapsed", time.Since(start)).
				Err(res.err).
				Msg("Layer failed")
			return Outcome{Layer: name, Err: res.err}
		}
		r.log.Debug().
			Str("layer", string(name)).
			Dur("elapsed", time.Since(start)).
			Str("status", string(res.score.Status)).
			Msg("Layer completed")
		return Outcome{Layer: name, Score: res.score}
	case <-ctx.Done():
		r.log.Warn().
			Str("layer", string(name)).
			Dur("elapsed", time.Since(start)).
			Msg("Layer timed out")
		return Outcome{Layer: name, Err: ctx.Err()}
	}
}
