// database/run_store.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/b3yotch/spyder/models"
)

// RecordIngestRun logs one completed pipeline run: the window it covered,
// where the raw snapshot landed, and how much it ingested. Purely an audit
// trail; the pipeline never reads it back.
func (s *Store) RecordIngestRun(ctx context.Context, run models.IngestRun) error {
	completedAt := run.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (
			start_date, end_date, snapshot_path, document_count, duration_ms, completed_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.StartDate, run.EndDate, run.SnapshotPath,
		run.DocumentCount, run.DurationMs, completedAt,
	)
	if err != nil {
		log.Printf("ERROR Database: Failed to record ingest run %s..%s: %v", run.StartDate, run.EndDate, err)
		return fmt.Errorf("failed to record ingest run: %w", err)
	}

	log.Printf("Database: Recorded ingest run %s..%s (%d documents).\n",
		run.StartDate, run.EndDate, run.DocumentCount)
	return nil
}

// ListIngestRuns returns the most recent runs, newest first.
func (s *Store) ListIngestRuns(ctx context.Context, limit int) ([]models.IngestRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id,
		       DATE_FORMAT(start_date, '%Y-%m-%d'),
		       DATE_FORMAT(end_date, '%Y-%m-%d'),
		       COALESCE(snapshot_path, ''),
		       document_count, duration_ms, completed_at
		FROM ingest_runs
		ORDER BY completed_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingest_runs: %w", err)
	}
	defer rows.Close()

	var runs []models.IngestRun
	for rows.Next() {
		var r models.IngestRun
		var completedAt sql.NullTime
		err := rows.Scan(&r.ID, &r.StartDate, &r.EndDate, &r.SnapshotPath,
			&r.DocumentCount, &r.DurationMs, &completedAt)
		if err != nil {
			log.Printf("ERROR Database: Failed to scan ingest_run row: %v", err)
			continue
		}
		if completedAt.Valid {
			r.CompletedAt = completedAt.Time
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ingest_run rows: %w", err)
	}
	return runs, nil
}
