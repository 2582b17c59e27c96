package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/vantage/internal/domain"
	"github.com/rs/zerolog"
)

// timeLayout is RFC3339 with a fixed-width fraction so stored UTC
// timestamps order lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is the persisted form of one analysis run
type Run struct {
	ID                  string                `json:"id"`
	GeneratedAt         time.Time             `json:"generated_at"`
	Decision            string                `json:"decision"`
	TotalScore          float64               `json:"total_score"`
	CompositeScore      float64               `json:"composite_score"`
	CompositeConfidence float64               `json:"composite_confidence"`
	Bundle              domain.AnalysisBundle `json:"bundle"`
	ReportText          string                `json:"report_text"`
	CreatedAt           time.Time             `json:"created_at"`
}

// RunRepository stores analysis runs in the analysis_runs table
type RunRepository struct {
	*BaseRepository
}

// NewRunRepository creates a run repository
func NewRunRepository(db *sql.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		BaseRepository: NewBase(db, log.With().Str("repo", "runs").Logger()),
	}
}

const selectRun = `
	SELECT id, generated_at, decision, total_score, composite_score,
	       composite_confidence, bundle_json, report_text, created_at
	FROM analysis_runs`

// Save persists one run. The bundle is stored as JSON next to the
// queryable columns.
func (r *RunRepository) Save(run Run) error {
	bundleJSON, err := json.Marshal(run.Bundle)
	if err != nil {
		return fmt.Errorf("failed to marshal bundle for run %s: %w", run.ID, err)
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.db.Exec(`
		INSERT INTO analysis_runs
			(id, generated_at, decision, total_score, composite_score,
			 composite_confidence, bundle_json, report_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.GeneratedAt.UTC().Format(timeLayout),
		run.Decision,
		run.TotalScore,
		run.CompositeScore,
		run.CompositeConfidence,
		string(bundleJSON),
		run.ReportText,
		createdAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	r.log.Debug().Str("run_id", run.ID).Msg("Saved analysis run")
	return nil
}

// ByID returns one run. The error wraps sql.ErrNoRows when absent.
func (r *RunRepository) ByID(id string) (*Run, error) {
	return scanRun(r.db.QueryRow(selectRun+` WHERE id = ?`, id))
}

// Latest returns the most recent run by generation time.
func (r *RunRepository) Latest() (*Run, error) {
	return scanRun(r.db.QueryRow(selectRun + ` ORDER BY generated_at DESC LIMIT 1`))
}

// List returns up to limit runs, newest first.
func (r *RunRepository) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(selectRun+` ORDER BY generated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// Prune deletes runs generated before the cutoff and reports how many
// rows went away.
func (r *RunRepository) Prune(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM analysis_runs WHERE generated_at < ?`,
		cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned runs: %w", err)
	}
	if deleted > 0 {
		r.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Pruned old analysis runs")
	}
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run         Run
		generatedAt string
		createdAt   string
		bundleJSON  string
	)
	if err := row.Scan(
		&run.ID, &generatedAt, &run.Decision, &run.TotalScore,
		&run.CompositeScore, &run.CompositeConfidence,
		&bundleJSON, &run.ReportText, &createdAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	var err error
	if run.GeneratedAt, err = time.Parse(timeLayout, generatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse generated_at for run %s: %w", run.ID, err)
	}
	if run.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at for run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(bundleJSON), &run.Bundle); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bundle for run %s: %w", run.ID, err)
	}

	return &run, nil
}
