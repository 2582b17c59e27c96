package status

import (
	"fmt"
	"sync"
	"time"

	"github.com/aristath/vantage/internal/modules/report"
	"github.com/rs/zerolog"
)

// EngineStatus is the snapshot served by the status endpoint
type EngineStatus struct {
	Running          bool              `json:"running"`
	LastRunID        string            `json:"last_run_id,omitempty"`
	LastRunAt        time.Time         `json:"last_run_at"`
	LastDecision     string            `json:"last_decision,omitempty"`
	LastTotalScore   float64           `json:"last_total_score"`
	LastError        string            `json:"last_error,omitempty"`
	LayerStatuses    map[string]string `json:"layer_statuses,omitempty"`
	Breakers         map[string]string `json:"breakers,omitempty"`
	NextScheduledRun time.Time         `json:"next_scheduled_run"`
}

// Cache holds the engine status behind a mutex. Writers are the
// analysis service and scheduler; readers are HTTP handlers. Snapshot
// always returns an independent copy.
type Cache struct {
	mu  sync.RWMutex
	cur EngineStatus
	log zerolog.Logger
}

// NewCache creates an empty status cache
func NewCache(log zerolog.Logger) *Cache {
	return &Cache{
		log: log.With().Str("component", "status_cache").Logger(),
	}
}

// RunStarted marks a run in flight
func (c *Cache) RunStarted(runID string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cur.Running = true
	c.cur.LastError = ""

	c.log.Debug().Str("run_id", runID).Msg("Run started")
}

// RunCompleted records the finished run's report
func (c *Cache) RunCompleted(rep report.Report) {
	layers := make(map[string]string, len(rep.Bundle.Layers))
	for _, ls := range rep.Bundle.Layers {
		entry := string(ls.Status)
		if ls.Reason != "" {
			entry = fmt.Sprintf("%s (%s)", ls.Status, ls.Reason)
		}
		layers[string(ls.Layer)] = entry
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cur.Running = false
	c.cur.LastRunID = rep.ID
	c.cur.LastRunAt = rep.GeneratedAt
	c.cur.LastDecision = string(rep.Decision)
	c.cur.LastTotalScore = rep.TotalScore
	c.cur.LastError = ""
	c.cur.LayerStatuses = layers
}

// RunFailed records a run that produced no report. The last good run's
// fields stay in place so the status endpoint keeps showing it.
func (c *Cache) RunFailed(runID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cur.Running = false
	c.cur.LastError = fmt.Sprintf("run %s: %v", runID, err)
}

// SetNextRun records when the scheduler will fire next
func (c *Cache) SetNextRun(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur.NextScheduledRun = at
}

// SetBreakers records external-client circuit breaker states
func (c *Cache) SetBreakers(states map[string]string) {
	copied := make(map[string]string, len(states))
	for k, v := range states {
		copied[k] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur.Breakers = copied
}

// Snapshot returns a copy of the current status. Maps are copied so
// callers can hold the snapshot without touching cache internals.
func (c *Cache) Snapshot() EngineStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := c.cur
	if c.cur.LayerStatuses != nil {
		out.LayerStatuses = make(map[string]string, len(c.cur.LayerStatuses))
		for k, v := range c.cur.LayerStatuses {
			out.LayerStatuses[k] = v
		}
	}
	if c.cur.Breakers != nil {
		out.Breakers = make(map[string]string, len(c.cur.Breakers))
		for k, v := range c.cur.Breakers {
			out.Breakers[k] = v
		}
	}
	return out
}
