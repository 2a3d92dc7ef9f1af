package domain

import (
	"time"
)

// Integration is one provisioned Clubhouse webhook endpoint together with
// its Zulip routing configuration. The secret key signs inbound payloads.
type Integration struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Stream             string    `json:"stream"`
	Topic              string    `json:"topic,omitempty"`
	SecretKey          string    `json:"secret_key,omitempty"`
	IsActive           bool      `json:"is_active"`
	RateLimitPerSecond int       `json:"rate_limit_per_second"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type CreateIntegrationRequest struct {
	Name   string `json:"name"`
	Stream string `json:"stream"`
	Topic  string `json:"topic,omitempty"`
}

type UpdateIntegrationRequest struct {
	Name               *string `json:"name,omitempty"`
	Stream             *string `json:"stream,omitempty"`
	Topic              *string `json:"topic,omitempty"`
	IsActive           *bool   `json:"is_active,omitempty"`
	RateLimitPerSecond *int    `json:"rate_limit_per_second,omitempty"`
}

type CreateIntegrationResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SecretKey string `json:"secret_key"`
}
