package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/vantage/internal/events"
	"github.com/aristath/vantage/internal/modules/analysis"
	"github.com/aristath/vantage/internal/modules/report"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type stubRunner struct {
	calls int
	rep   report.Report
	err   error
}

func (r *stubRunner) RunAnalysis(context.Context) (report.Report, error) {
	r.calls++
	return r.rep, r.err
}

type stubPruner struct {
	cutoff time.Time
	pruned int64
	err    error
	calls  int
}

func (p *stubPruner) Prune(cutoff time.Time) (int64, error) {
	p.calls++
	p.cutoff = cutoff
	return p.pruned, p.err
}

func TestAnalysisJob_Run_SkipsNonTradingDays(t *testing.T) {
	runner := &stubRunner{rep: report.Report{ID: "r1"}}
	job := NewAnalysisJob(runner, NewTradingCalendar(zerolog.Nop()), time.Minute, zerolog.Nop())
	job.now = func() time.Time { return nyTime(t, "2026-12-25 18:10") }

	assert.NoError(t, job.Run())
	assert.Equal(t, 0, runner.calls, "holiday trigger must not start a run")
}

func TestAnalysisJob_Run_ExecutesOnTradingDays(t *testing.T) {
	runner := &stubRunner{rep: report.Report{ID: "r1", Decision: report.DecisionHold}}
	job := NewAnalysisJob(runner, NewTradingCalendar(zerolog.Nop()), time.Minute, zerolog.Nop())
	job.now = func() time.Time { return nyTime(t, "2026-03-04 18:10") }

	assert.NoError(t, job.Run())
	assert.Equal(t, 1, runner.calls)
}

func TestAnalysisJob_Run_OverlapIsNotAFailure(t *testing.T) {
	runner := &stubRunner{err: analysis.ErrRunInProgress}
	job := NewAnalysisJob(runner, NewTradingCalendar(zerolog.Nop()), time.Minute, zerolog.Nop())
	job.now = func() time.Time { return nyTime(t, "2026-03-04 18:10") }

	assert.NoError(t, job.Run(), "an in-progress run means skip, not fail")
}

func TestAnalysisJob_Run_PropagatesRunErrors(t *testing.T) {
	runner := &stubRunner{err: errors.New("store corrupt")}
	job := NewAnalysisJob(runner, NewTradingCalendar(zerolog.Nop()), time.Minute, zerolog.Nop())
	job.now = func() time.Time { return nyTime(t, "2026-03-04 18:10") }

	err := job.Run()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store corrupt")
}

func TestRetentionJob_Run_PrunesPastCutoff(t *testing.T) {
	pruner := &stubPruner{pruned: 3}
	job := NewRetentionJob(pruner, 30, events.NewManager(zerolog.Nop()), zerolog.Nop())

	assert.NoError(t, job.Run())
	assert.Equal(t, 1, pruner.calls)

	wantCutoff := time.Now().UTC().AddDate(0, 0, -30)
	assert.WithinDuration(t, wantCutoff, pruner.cutoff, time.Minute)
}

func TestRetentionJob_Run_DisabledRetentionSkips(t *testing.T) {
	pruner := &stubPruner{}
	job := NewRetentionJob(pruner, 0, events.NewManager(zerolog.Nop()), zerolog.Nop())

	assert.NoError(t, job.Run())
	assert.Equal(t, 0, pruner.calls)
}

func TestRetentionJob_Run_PropagatesStoreErrors(t *testing.T) {
	pruner := &stubPruner{err: errors.New("locked")}
	job := NewRetentionJob(pruner, 30, events.NewManager(zerolog.Nop()), zerolog.Nop())

	assert.Error(t, job.Run())
}

func TestScheduler_NextRun(t *testing.T) {
	s := New(zerolog.Nop())
	assert.True(t, s.NextRun().IsZero(), "nothing scheduled yet")

	runner := &stubRunner{}
	job := NewAnalysisJob(runner, NewTradingCalendar(zerolog.Nop()), time.Minute, zerolog.Nop())
	assert.NoError(t, s.AddJob("0 0 * * * *", job))

	s.Start()
	defer s.Stop()

	next := s.NextRun()
	assert.False(t, next.IsZero())
	assert.True(t, next.After(time.Now()))
}
