package clubhouse

import (
	"errors"
	"testing"
)

func TestDecode_ValidStoryUpdate(t *testing.T) {
	body := []byte(`{
		"resource": "story",
		"action": "update",
		"id": 42,
		"title": "Fix critical bug",
		"actor": {"id": 7, "name": "alice"},
		"changed_at": "2023-05-01T12:00:00Z",
		"changes": [
			{"field": "name", "old": "Fix bug", "new": "Fix critical bug"}
		]
	}`)

	event, err := Decode(body, "application/json")
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	if event.Resource != "story" {
		t.Errorf("Resource: got %q, want %q", event.Resource, "story")
	}
	if event.Action != "update" {
		t.Errorf("Action: got %q, want %q", event.Action, "update")
	}
	if event.ID != "42" {
		t.Errorf("ID: got %q, want %q", event.ID, "42")
	}
	if event.Title != "Fix critical bug" {
		t.Errorf("Title: got %q, want %q", event.Title, "Fix critical bug")
	}
	if event.Actor.Name != "alice" {
		t.Errorf("Actor.Name: got %q, want %q", event.Actor.Name, "alice")
	}
	if event.Actor.ID != "7" {
		t.Errorf("Actor.ID: got %q, want %q", event.Actor.ID, "7")
	}
	if event.ChangedAt.IsZero() {
		t.Error("ChangedAt should be parsed")
	}
	if len(event.Changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(event.Changes))
	}
	c := event.Changes[0]
	if c.Field != "name" {
		t.Errorf("Field: got %q, want %q", c.Field, "name")
	}
	if c.Old == nil || *c.Old != "Fix bug" {
		t.Errorf("Old: got %v, want %q", c.Old, "Fix bug")
	}
	if c.New == nil || *c.New != "Fix critical bug" {
		t.Errorf("New: got %v, want %q", c.New, "Fix critical bug")
	}
}

func TestDecode_MandatoryFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing resource", `{"action": "create", "title": "X"}`},
		{"missing action", `{"resource": "story", "title": "X"}`},
		{"empty resource", `{"resource": "", "action": "create"}`},
		{"empty action", `{"resource": "epic", "action": "  "}`},
		{"malformed JSON", `{"resource": "story", "action":`},
		{"JSON array", `["resource", "story"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body), "application/json")
			if err == nil {
				t.Fatal("expected decode error, got nil")
			}

			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected *DecodeError, got %T: %v", err, err)
			}
		})
	}
}

func TestDecode_ContentType(t *testing.T) {
	body := []byte(`{"resource": "story", "action": "create"}`)

	tests := []struct {
		name        string
		contentType string
		wantErr     bool
	}{
		{"json", "application/json", false},
		{"json with charset", "application/json; charset=utf-8", false},
		{"json suffix", "application/vnd.clubhouse+json", false},
		{"absent", "", false},
		{"form", "application/x-www-form-urlencoded", true},
		{"text", "text/plain", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(body, tt.contentType)
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestDecode_IgnoresUnknownFields(t *testing.T) {
	body := []byte(`{
		"resource": "epic",
		"action": "create",
		"title": "Q3 Roadmap",
		"version": "v1",
		"references": [{"id": 1}],
		"member_id": "uuid-here"
	}`)

	event, err := Decode(body, "application/json")
	if err != nil {
		t.Fatalf("unknown fields must not fail the decode: %v", err)
	}
	if event.Title != "Q3 Roadmap" {
		t.Errorf("Title: got %q, want %q", event.Title, "Q3 Roadmap")
	}
}

func TestDecode_PermissiveOptionalFields(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, id, actorName string, changedAtZero bool)
	}{
		{
			name: "string id",
			body: `{"resource": "story", "action": "create", "id": "abc-123"}`,
			check: func(t *testing.T, id, _ string, _ bool) {
				if id != "abc-123" {
					t.Errorf("ID: got %q, want %q", id, "abc-123")
				}
			},
		},
		{
			name: "actor as bare string",
			body: `{"resource": "story", "action": "create", "actor": "alice"}`,
			check: func(t *testing.T, _, actorName string, _ bool) {
				if actorName != "alice" {
					t.Errorf("Actor.Name: got %q, want %q", actorName, "alice")
				}
			},
		},
		{
			name: "missing actor degrades to unknown",
			body: `{"resource": "story", "action": "create"}`,
			check: func(t *testing.T, _, actorName string, _ bool) {
				if actorName != "unknown" {
					t.Errorf("Actor.Name: got %q, want %q", actorName, "unknown")
				}
			},
		},
		{
			name: "malformed actor degrades to unknown",
			body: `{"resource": "story", "action": "create", "actor": 12.5}`,
			check: func(t *testing.T, _, actorName string, _ bool) {
				if actorName != "unknown" {
					t.Errorf("Actor.Name: got %q, want %q", actorName, "unknown")
				}
			},
		},
		{
			name: "malformed timestamp degrades to zero",
			body: `{"resource": "story", "action": "create", "changed_at": "yesterday"}`,
			check: func(t *testing.T, _, _ string, changedAtZero bool) {
				if !changedAtZero {
					t.Error("malformed changed_at should degrade to zero time")
				}
			},
		},
		{
			name: "malformed id degrades to empty",
			body: `{"resource": "story", "action": "create", "id": {"nested": true}}`,
			check: func(t *testing.T, id, _ string, _ bool) {
				if id != "" {
					t.Errorf("ID: got %q, want empty", id)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := Decode([]byte(tt.body), "application/json")
			if err != nil {
				t.Fatalf("optional field must not fail the decode: %v", err)
			}
			tt.check(t, event.ID, event.Actor.Name, event.ChangedAt.IsZero())
		})
	}
}

func TestDecode_ChangeValues(t *testing.T) {
	body := []byte(`{
		"resource": "story",
		"action": "update",
		"changes": [
			{"field": "estimate", "old": 3, "new": 5},
			{"field": "archived", "old": false, "new": true},
			{"field": "description", "old": null, "new": "added"},
			{"field": "", "old": "dropped", "new": "dropped"},
			{"field": "labels", "old": ["a"], "new": ["a", "b"]}
		]
	}`)

	event, err := Decode(body, "application/json")
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	// The record with no field name is dropped
	if len(event.Changes) != 4 {
		t.Fatalf("expected 4 changes, got %d", len(event.Changes))
	}

	if got := event.Changes[0]; got.Old == nil || *got.Old != "3" || got.New == nil || *got.New != "5" {
		t.Errorf("numeric change: got %+v", got)
	}
	if got := event.Changes[1]; got.Old == nil || *got.Old != "false" || got.New == nil || *got.New != "true" {
		t.Errorf("boolean change: got %+v", got)
	}
	if got := event.Changes[2]; got.Old != nil {
		t.Errorf("null old value should be nil, got %v", *got.Old)
	}
	// Composite values are not representable in a diff line
	if got := event.Changes[3]; got.Old != nil || got.New != nil {
		t.Errorf("array values should degrade to nil, got %+v", got)
	}
}

func TestDecode_NormalizesResourceAndAction(t *testing.T) {
	body := []byte(`{"resource": " Story ", "action": "UPDATE"}`)

	event, err := Decode(body, "application/json")
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if event.Resource != "story" {
		t.Errorf("Resource: got %q, want %q", event.Resource, "story")
	}
	if event.Action != "update" {
		t.Errorf("Action: got %q, want %q", event.Action, "update")
	}
}
