package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/anagpal/clubhouse-zulip-bridge/internal/domain"
	"github.com/jackc/pgx/v5"
)

func (s *PostgresStore) CreateIntegration(ctx context.Context, req domain.CreateIntegrationRequest) (*domain.Integration, error) {
	secretKey, err := generateSecretKey()
	if err != nil {
		return nil, fmt.Errorf("generating secret key: %w", err)
	}

	var integration domain.Integration
	err = s.pool.QueryRow(ctx, `
		INSERT INTO integrations (name, stream, topic, secret_key)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, stream, topic, secret_key, is_active, rate_limit_per_second, created_at, updated_at
	`, req.Name, req.Stream, req.Topic, secretKey).Scan(
		&integration.ID, &integration.Name, &integration.Stream, &integration.Topic,
		&integration.SecretKey, &integration.IsActive, &integration.RateLimitPerSecond,
		&integration.CreatedAt, &integration.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting integration: %w", err)
	}

	return &integration, nil
}

func (s *PostgresStore) GetIntegration(ctx context.Context, id string) (*domain.Integration, error) {
	var integration domain.Integration
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, stream, topic, secret_key, is_active, rate_limit_per_second, created_at, updated_at
		FROM integrations WHERE id = $1
	`, id).Scan(
		&integration.ID, &integration.Name, &integration.Stream, &integration.Topic,
		&integration.SecretKey, &integration.IsActive, &integration.RateLimitPerSecond,
		&integration.CreatedAt, &integration.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying integration: %w", err)
	}
	return &integration, nil
}

func (s *PostgresStore) ListIntegrations(ctx context.Context) ([]domain.Integration, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, stream, topic, is_active, rate_limit_per_second, created_at, updated_at
		FROM integrations
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying integrations: %w", err)
	}
	defer rows.Close()

	var integrations []domain.Integration
	for rows.Next() {
		var integration domain.Integration
		err := rows.Scan(
			&integration.ID, &integration.Name, &integration.Stream, &integration.Topic,
			&integration.IsActive, &integration.RateLimitPerSecond,
			&integration.CreatedAt, &integration.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning integration: %w", err)
		}
		integrations = append(integrations, integration)
	}

	if integrations == nil {
		integrations = []domain.Integration{}
	}

	return integrations, nil
}

func (s *PostgresStore) UpdateIntegration(ctx context.Context, id string, req domain.UpdateIntegrationRequest) (*domain.Integration, error) {
	setClauses := []string{}
	args := []interface{}{}
	argIdx := 1

	if req.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *req.Name)
		argIdx++
	}
	if req.Stream != nil {
		setClauses = append(setClauses, fmt.Sprintf("stream = $%d", argIdx))
		args = append(args, *req.Stream)
		argIdx++
	}
	if req.Topic != nil {
		setClauses = append(setClauses, fmt.Sprintf("topic = $%d", argIdx))
		args = append(args, *req.Topic)
		argIdx++
	}
	if req.IsActive != nil {
		setClauses = append(setClauses, fmt.Sprintf("is_active = $%d", argIdx))
		args = append(args, *req.IsActive)
		argIdx++
	}
	if req.RateLimitPerSecond != nil {
		setClauses = append(setClauses, fmt.Sprintf("rate_limit_per_second = $%d", argIdx))
		args = append(args, *req.RateLimitPerSecond)
		argIdx++
	}

	if len(setClauses) == 0 {
		return s.GetIntegration(ctx, id)
	}

	setClauses = append(setClauses, "updated_at = NOW()")

	query := fmt.Sprintf(`
		UPDATE integrations SET %s
		WHERE id = $%d
		RETURNING id, name, stream, topic, is_active, rate_limit_per_second, created_at, updated_at
	`, strings.Join(setClauses, ", "), argIdx)
	args = append(args, id)

	var integration domain.Integration
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&integration.ID, &integration.Name, &integration.Stream, &integration.Topic,
		&integration.IsActive, &integration.RateLimitPerSecond,
		&integration.CreatedAt, &integration.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("updating integration: %w", err)
	}

	return &integration, nil
}

func generateSecretKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "chzl_" + hex.EncodeToString(bytes), nil
}
