package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/vantage/internal/modules/analysis"
	"github.com/aristath/vantage/internal/modules/report"
	"github.com/rs/zerolog"
)

// AnalysisRunner runs one full analysis pass.
type AnalysisRunner interface {
	RunAnalysis(ctx context.Context) (report.Report, error)
}

// AnalysisJob triggers the scheduled analysis run. It fires after the
// close on trading days; holiday and weekend triggers are skipped, not
// failed, so the cron schedule can stay simple.
type AnalysisJob struct {
	runner   AnalysisRunner
	calendar *TradingCalendar
	timeout  time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewAnalysisJob creates the scheduled analysis job.
func NewAnalysisJob(runner AnalysisRunner, calendar *TradingCalendar, timeout time.Duration, log zerolog.Logger) *AnalysisJob {
	return &AnalysisJob{
		runner:   runner,
		calendar: calendar,
		timeout:  timeout,
		now:      time.Now,
		log:      log.With().Str("job", "analysis_run").Logger(),
	}
}

// Name returns the job name
func (j *AnalysisJob) Name() string {
	return "analysis_run"
}

// Run executes one analysis pass under the job timeout.
func (j *AnalysisJob) Run() error {
	if !j.calendar.IsTradingDay(j.now()) {
		j.log.Info().Msg("No trading session today, skipping analysis run")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	rep, err := j.runner.RunAnalysis(ctx)
	if err != nil {
		if errors.Is(err, analysis.ErrRunInProgress) {
			j.log.Warn().Msg("Analysis already running, skipping scheduled trigger")
			return nil
		}
		return err
	}

	j.log.Info().
		Str("run_id", rep.ID).
		Str("decision", string(rep.Decision)).
		Msg("Scheduled analysis run completed")
	return nil
}
