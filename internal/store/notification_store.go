package store

import (
	"context"
	"fmt"

	"github.com/anagpal/clubhouse-zulip-bridge/internal/domain"
	"github.com/jackc/pgx/v5"
)

// NotificationRecord holds data for inserting one dispatch attempt.
type NotificationRecord struct {
	IntegrationID  string
	EventKind      string
	Resource       string
	Action         string
	Title          string
	AttemptNumber  int
	Status         string
	Reason         string
	ZulipMessageID *int64
	ResponseTimeMs int
}

// RecordNotification inserts a dispatch attempt into the notification log.
func (s *PostgresStore) RecordNotification(ctx context.Context, rec NotificationRecord) error {
	var title *string
	if rec.Title != "" {
		title = &rec.Title
	}

	var reason *string
	if rec.Reason != "" {
		reason = &rec.Reason
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (integration_id, event_kind, resource, action, title, attempt_number, status, reason, zulip_message_id, response_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.IntegrationID, rec.EventKind, rec.Resource, rec.Action, title,
		rec.AttemptNumber, rec.Status, reason, rec.ZulipMessageID, rec.ResponseTimeMs)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, integrationID, status string, limit int) ([]domain.Notification, error) {
	query := `SELECT id, integration_id, event_kind, resource, action, title, attempt_number, status, reason, zulip_message_id, response_time_ms, created_at FROM notifications`
	args := []interface{}{}
	conditions := []string{}
	argIdx := 1

	if integrationID != "" {
		conditions = append(conditions, fmt.Sprintf("integration_id = $%d", argIdx))
		args = append(args, integrationID)
		argIdx++
	}
	if status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, status)
		argIdx++
	}

	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		var n domain.Notification
		err := rows.Scan(
			&n.ID, &n.IntegrationID, &n.EventKind, &n.Resource, &n.Action, &n.Title,
			&n.AttemptNumber, &n.Status, &n.Reason, &n.ZulipMessageID, &n.ResponseTimeMs, &n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if notifications == nil {
		notifications = []domain.Notification{}
	}

	return notifications, nil
}

func (s *PostgresStore) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	var n domain.Notification
	err := s.pool.QueryRow(ctx, `
		SELECT id, integration_id, event_kind, resource, action, title, attempt_number, status, reason, zulip_message_id, response_time_ms, created_at
		FROM notifications WHERE id = $1
	`, id).Scan(
		&n.ID, &n.IntegrationID, &n.EventKind, &n.Resource, &n.Action, &n.Title,
		&n.AttemptNumber, &n.Status, &n.Reason, &n.ZulipMessageID, &n.ResponseTimeMs, &n.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying notification: %w", err)
	}
	return &n, nil
}

// DeadLetterRecord holds data for inserting a terminally failed dispatch.
type DeadLetterRecord struct {
	IntegrationID string
	EventKind     string
	Content       string
	TotalAttempts int
	LastError     string
}

// InsertDeadLetter adds a permanently failed dispatch to the dead letter queue.
func (s *PostgresStore) InsertDeadLetter(ctx context.Context, rec DeadLetterRecord) error {
	var lastErr *string
	if rec.LastError != "" {
		lastErr = &rec.LastError
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO dead_letters (integration_id, event_kind, content, total_attempts, last_error)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.IntegrationID, rec.EventKind, rec.Content, rec.TotalAttempts, lastErr)
	if err != nil {
		return fmt.Errorf("inserting dead letter: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDeadLetters(ctx context.Context, integrationID string, resolved bool, limit int) ([]domain.DeadLetter, error) {
	query := `
		SELECT id, integration_id, event_kind, content, total_attempts, last_error, created_at, resolved_at, resolved_by
		FROM dead_letters
		WHERE (resolved_at IS NOT NULL) = $1`
	args := []interface{}{resolved}
	argIdx := 2

	if integrationID != "" {
		query += fmt.Sprintf(" AND integration_id = $%d", argIdx)
		args = append(args, integrationID)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dead letters: %w", err)
	}
	defer rows.Close()

	var letters []domain.DeadLetter
	for rows.Next() {
		var dl domain.DeadLetter
		err := rows.Scan(
			&dl.ID, &dl.IntegrationID, &dl.EventKind, &dl.Content,
			&dl.TotalAttempts, &dl.LastError, &dl.CreatedAt, &dl.ResolvedAt, &dl.ResolvedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}
		letters = append(letters, dl)
	}

	if letters == nil {
		letters = []domain.DeadLetter{}
	}

	return letters, nil
}

func (s *PostgresStore) GetDeadLetter(ctx context.Context, id string) (*domain.DeadLetter, error) {
	var dl domain.DeadLetter
	err := s.pool.QueryRow(ctx, `
		SELECT id, integration_id, event_kind, content, total_attempts, last_error, created_at, resolved_at, resolved_by
		FROM dead_letters WHERE id = $1
	`, id).Scan(
		&dl.ID, &dl.IntegrationID, &dl.EventKind, &dl.Content,
		&dl.TotalAttempts, &dl.LastError, &dl.CreatedAt, &dl.ResolvedAt, &dl.ResolvedBy,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying dead letter: %w", err)
	}
	return &dl, nil
}

// ResolveDeadLetter marks a dead letter as handled by an operator.
func (s *PostgresStore) ResolveDeadLetter(ctx context.Context, id, resolvedBy string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dead_letters
		SET resolved_at = NOW(), resolved_by = $2
		WHERE id = $1 AND resolved_at IS NULL
	`, id, resolvedBy)
	if err != nil {
		return fmt.Errorf("resolving dead letter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dead letter %s not found or already resolved", id)
	}
	return nil
}
