package intel

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Run status values.
const (
	StatusIdle       = "idle"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

const currentRunKey = "current_run"

// RunStatus is the progress record for one pipeline run. Runs are keyed by
// run id so a new pass never clobbers the record of an earlier one; the
// current_run metadata pointer tracks the latest.
type RunStatus struct {
	RunID           string     `json:"run_id"`
	Status          string     `json:"status"`
	TotalChunks     int        `json:"total_chunks"`
	ProcessedChunks int        `json:"processed_chunks"`
	StartedAt       time.Time  `json:"started_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	FailedAt        *time.Time `json:"failed_at,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// CreateRun records a new processing run and points current_run at it.
func (s *Store) CreateRun(ctx context.Context, runID string, totalChunks int) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (run_id, status, total_chunks, processed_chunks, started_at_ms, updated_at_ms)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			total_chunks = excluded.total_chunks,
			processed_chunks = 0,
			updated_at_ms = excluded.updated_at_ms
	`, runID, StatusProcessing, totalChunks, now, now)
	if err != nil {
		return fmt.Errorf("creating run %s: %w", runID, err)
	}

	return s.setMetadata(ctx, currentRunKey, runID)
}

// UpdateRunProgress sets the processed-chunk counter for a run.
// processedChunks is monotonically non-decreasing during a run; the caller
// is the only writer.
func (s *Store) UpdateRunProgress(ctx context.Context, runID string, processedChunks int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs SET processed_chunks = ?, updated_at_ms = ?
		WHERE run_id = ?
	`, processedChunks, time.Now().UnixMilli(), runID)
	if err != nil {
		return fmt.Errorf("updating run %s progress: %w", runID, err)
	}
	return nil
}

// CompleteRun finalizes a run as completed. Completed means "ran to
// termination": processed_chunks may still be below total_chunks when some
// chunks were skipped after caught failures.
func (s *Store) CompleteRun(ctx context.Context, runID string) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs SET status = ?, completed_at_ms = ?, updated_at_ms = ?
		WHERE run_id = ?
	`, StatusCompleted, now, now, runID)
	if err != nil {
		return fmt.Errorf("completing run %s: %w", runID, err)
	}
	return nil
}

// FailRun marks a run as failed with an error message. It upserts so a run
// that died before CreateRun still leaves a record behind.
func (s *Store) FailRun(ctx context.Context, runID string, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (run_id, status, total_chunks, processed_chunks, started_at_ms, updated_at_ms, failed_at_ms, error)
		VALUES (?, ?, 0, 0, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			updated_at_ms = excluded.updated_at_ms,
			failed_at_ms = excluded.failed_at_ms,
			error = excluded.error
	`, runID, StatusError, now, now, now, errMsg)
	if err != nil {
		return fmt.Errorf("failing run %s: %w", runID, err)
	}

	return s.setMetadata(ctx, currentRunKey, runID)
}

// GetRun returns the status record for a run id, or nil if unknown.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunStatus, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, status, total_chunks, processed_chunks,
			started_at_ms, updated_at_ms, completed_at_ms, failed_at_ms, error
		FROM pipeline_runs WHERE run_id = ?
	`, runID)

	var rs RunStatus
	var startedMs, updatedMs int64
	var completedMs, failedMs sql.NullInt64
	var errMsg sql.NullString

	err := row.Scan(&rs.RunID, &rs.Status, &rs.TotalChunks, &rs.ProcessedChunks,
		&startedMs, &updatedMs, &completedMs, &failedMs, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run %s: %w", runID, err)
	}

	rs.StartedAt = time.UnixMilli(startedMs).UTC()
	rs.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	if completedMs.Valid {
		t := time.UnixMilli(completedMs.Int64).UTC()
		rs.CompletedAt = &t
	}
	if failedMs.Valid {
		t := time.UnixMilli(failedMs.Int64).UTC()
		rs.FailedAt = &t
	}
	rs.Error = errMsg.String

	return &rs, nil
}

// CurrentRun returns the status of the most recent run, or an idle status
// when no run has ever happened.
func (s *Store) CurrentRun(ctx context.Context) (*RunStatus, error) {
	runID, err := s.getMetadata(ctx, currentRunKey)
	if err != nil {
		return nil, fmt.Errorf("reading current run pointer: %w", err)
	}
	if runID == "" {
		return &RunStatus{Status: StatusIdle}, nil
	}

	rs, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		return &RunStatus{Status: StatusIdle}, nil
	}
	return rs, nil
}
