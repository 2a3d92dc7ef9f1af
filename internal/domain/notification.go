package domain

import (
	"time"
)

// RenderedMessage is a channel-ready Zulip message. Content is never empty
// and never exceeds the Zulip message size limit.
type RenderedMessage struct {
	Stream  string `json:"stream"`
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

// DispatchResult is the terminal outcome of one dispatch attempt sequence.
type DispatchResult struct {
	Delivered bool   `json:"delivered"`
	MessageID int64  `json:"message_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Attempts  int    `json:"attempts"`
}

// Notification is one recorded dispatch attempt for an accepted webhook.
type Notification struct {
	ID             string    `json:"id"`
	IntegrationID  string    `json:"integration_id"`
	EventKind      string    `json:"event_kind"`
	Resource       string    `json:"resource"`
	Action         string    `json:"action"`
	Title          *string   `json:"title,omitempty"`
	AttemptNumber  int       `json:"attempt_number"`
	Status         string    `json:"status"`
	Reason         *string   `json:"reason,omitempty"`
	ZulipMessageID *int64    `json:"zulip_message_id,omitempty"`
	ResponseTimeMs *int      `json:"response_time_ms,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type DeadLetter struct {
	ID            string     `json:"id"`
	IntegrationID string     `json:"integration_id"`
	EventKind     string     `json:"event_kind"`
	Content       string     `json:"content"`
	TotalAttempts int        `json:"total_attempts"`
	LastError     *string    `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy    *string    `json:"resolved_by,omitempty"`
}
