package store

import (
	"context"
	"fmt"
)

// NotificationMetrics holds aggregated dispatch statistics.
type NotificationMetrics struct {
	TotalDispatches   int     `json:"total_dispatches"`
	SuccessCount      int     `json:"success_count"`
	FailedCount       int     `json:"failed_count"`
	SuccessRate       float64 `json:"success_rate"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	UnresolvedDead    int     `json:"unresolved_dead_letters"`
}

// GetNotificationMetrics aggregates dispatch outcomes across all integrations.
func (s *PostgresStore) GetNotificationMetrics(ctx context.Context) (*NotificationMetrics, error) {
	var m NotificationMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'success'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COALESCE(AVG(response_time_ms), 0)
		FROM notifications
	`).Scan(&m.TotalDispatches, &m.SuccessCount, &m.FailedCount, &m.AvgResponseTimeMs)
	if err != nil {
		return nil, fmt.Errorf("querying notification metrics: %w", err)
	}

	if m.TotalDispatches > 0 {
		m.SuccessRate = float64(m.SuccessCount) / float64(m.TotalDispatches) * 100
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM dead_letters WHERE resolved_at IS NULL
	`).Scan(&m.UnresolvedDead)
	if err != nil {
		return nil, fmt.Errorf("querying dead letter count: %w", err)
	}

	return &m, nil
}
