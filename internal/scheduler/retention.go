package scheduler

import (
	"time"

	"github.com/aristath/vantage/internal/events"
	"github.com/rs/zerolog"
)

// RunPruner deletes stored runs older than a cutoff.
type RunPruner interface {
	Prune(cutoff time.Time) (int64, error)
}

// RetentionJob trims old analysis runs from the store. Retention is
// policy-driven; a non-positive retention disables pruning entirely.
type RetentionJob struct {
	runs          RunPruner
	retentionDays int
	events        *events.Manager
	log           zerolog.Logger
}

// NewRetentionJob creates the run retention job.
func NewRetentionJob(runs RunPruner, retentionDays int, ev *events.Manager, log zerolog.Logger) *RetentionJob {
	return &RetentionJob{
		runs:          runs,
		retentionDays: retentionDays,
		events:        ev,
		log:           log.With().Str("job", "run_retention").Logger(),
	}
}

// Name returns the job name
func (j *RetentionJob) Name() string {
	return "run_retention"
}

// Run deletes runs past the retention window.
func (j *RetentionJob) Run() error {
	if j.retentionDays <= 0 {
		j.log.Debug().Msg("Retention disabled, nothing to prune")
		return nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -j.retentionDays)
	pruned, err := j.runs.Prune(cutoff)
	if err != nil {
		j.events.EmitError("run_retention", err, map[string]interface{}{
			"cutoff": cutoff.Format(time.RFC3339),
		})
		return err
	}

	if pruned > 0 {
		j.log.Info().
			Int64("pruned", pruned).
			Time("cutoff", cutoff).
			Msg("Pruned old analysis runs")
		j.events.Emit(events.RunsPruned, "scheduler", map[string]interface{}{
			"pruned": pruned,
			"cutoff": cutoff.Format(time.RFC3339),
		})
	}
	return nil
}
