package runstore

import (
	"context"
	"fmt"
	"time"
)

// Stats returns a count of runs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates run state for status output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusRunning:
			health.Running += count
		case StatusCompleted:
			health.Completed += count
		case StatusError:
			health.Failed += count
		}
	}
	return health, nil
}

// CheckHealth runs an integrity check and reports database details.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{Path: s.path}
	version, err := s.userVersion(ctx)
	if err != nil {
		return health, err
	}
	health.SchemaVersion = version
	var integrity string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityOK = integrity == "ok"
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM runs").Scan(&health.Records); err != nil {
		return health, fmt.Errorf("count runs: %w", err)
	}
	return health, nil
}

// ResetInterrupted marks runs still recorded as running as failed. It is
// called once at daemon startup, before any new run begins.
func (s *Store) ResetInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_kind = ?, error_message = ?, updated_at = ? WHERE status = ?`,
		StatusError,
		"internal",
		"daemon stopped before the run finished",
		s.now().UTC().Format(timestampLayout),
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

// Prune deletes finished runs last updated before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE status != ? AND updated_at < ?`,
		StatusRunning,
		cutoff.UTC().Format(timestampLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}
