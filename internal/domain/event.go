package domain

import (
	"time"
)

// Resource kinds and actions recognized in Clubhouse webhook payloads.
const (
	ResourceStory = "story"
	ResourceEpic  = "epic"

	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Actor identifies who triggered the event on the Clubhouse side.
type Actor struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// FieldChange records a single field transition on an updated resource.
// Old is nil when the field had no previous value, New is nil when the
// field was removed.
type FieldChange struct {
	Field string  `json:"field"`
	Old   *string `json:"old,omitempty"`
	New   *string `json:"new,omitempty"`
}

// ParsedEvent is the structured decode of one webhook payload.
// Resource and Action are always set; everything else is best-effort.
type ParsedEvent struct {
	Resource  string        `json:"resource"`
	Action    string        `json:"action"`
	ID        string        `json:"id,omitempty"`
	Title     string        `json:"title,omitempty"`
	Actor     Actor         `json:"actor"`
	ChangedAt time.Time     `json:"changed_at,omitempty"`
	Changes   []FieldChange `json:"changes,omitempty"`
}
