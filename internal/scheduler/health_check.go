package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/vantage/internal/database"
	"github.com/aristath/vantage/internal/modules/status"
	"github.com/rs/zerolog"
)

// HealthCheckJob verifies the run store and upstream reachability and
// publishes circuit-breaker states to the status cache. Store
// corruption is the only failure it reports; an unreachable upstream is
// expected operational noise.
type HealthCheckJob struct {
	log      zerolog.Logger
	db       *database.DB
	probe    func(ctx context.Context) error
	breakers func() map[string]string
	nextRun  func() time.Time
	status   *status.Cache
}

// HealthCheckConfig holds configuration for the health check job.
// Probe checks market-data reachability; Breakers collects the current
// state of every breaker-wrapped client; NextRun reports the next
// scheduled fire time. Any of the three may be nil.
type HealthCheckConfig struct {
	Log      zerolog.Logger
	DB       *database.DB
	Probe    func(ctx context.Context) error
	Breakers func() map[string]string
	NextRun  func() time.Time
	Status   *status.Cache
}

// NewHealthCheckJob creates a new health check job
func NewHealthCheckJob(cfg HealthCheckConfig) *HealthCheckJob {
	return &HealthCheckJob{
		log:      cfg.Log.With().Str("job", "health_check").Logger(),
		db:       cfg.DB,
		probe:    cfg.Probe,
		breakers: cfg.Breakers,
		nextRun:  cfg.NextRun,
		status:   cfg.Status,
	}
}

// Name returns the job name
func (j *HealthCheckJob) Name() string {
	return "health_check"
}

// Run executes the health check
func (j *HealthCheckJob) Run() error {
	start := time.Now()

	if err := j.checkStoreIntegrity(); err != nil {
		j.log.Error().Err(err).Msg("Run store integrity check failed")
		return err
	}
	j.checkWALCheckpoint()
	j.probeMarketData()
	j.publishStatus()

	j.log.Debug().
		Dur("duration", time.Since(start)).
		Msg("Health check completed")
	return nil
}

// checkStoreIntegrity runs SQLite's PRAGMA integrity_check. Corruption
// here is critical: persisted runs are the system of record.
func (j *HealthCheckJob) checkStoreIntegrity() error {
	if j.db == nil {
		return nil
	}

	var result string
	if err := j.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}
	return nil
}

// checkWALCheckpoint monitors WAL growth and logs when a checkpoint
// is overdue.
func (j *HealthCheckJob) checkWALCheckpoint() {
	if j.db == nil {
		return
	}

	var busy, frames, checkpointed int
	err := j.db.QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to check WAL checkpoint")
		return
	}

	if frames > 1000 {
		j.log.Warn().
			Int("wal_frames", frames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large, checkpoint may be needed")
	} else {
		j.log.Debug().Int("wal_frames", frames).Msg("WAL checkpoint status OK")
	}
}

func (j *HealthCheckJob) probeMarketData() {
	if j.probe == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := j.probe(ctx); err != nil {
		j.log.Warn().Err(err).Msg("Market data probe failed")
		return
	}
	j.log.Debug().Msg("Market data reachable")
}

func (j *HealthCheckJob) publishStatus() {
	if j.status == nil {
		return
	}
	if j.breakers != nil {
		j.status.SetBreakers(j.breakers())
	}
	if j.nextRun != nil {
		j.status.SetNextRun(j.nextRun())
	}
}
