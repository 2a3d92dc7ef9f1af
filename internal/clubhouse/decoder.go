package clubhouse

import (
	"encoding/json"
	"fmt"
	"mime"
	"strconv"
	"strings"
	"time"

	"github.com/anagpal/clubhouse-zulip-bridge/internal/domain"
)

// DecodeError reports a payload that cannot be turned into a ParsedEvent.
// It always maps to a client error at the HTTP layer and is never retried.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "decoding webhook payload: " + e.Reason
}

func decodeErrorf(format string, args ...any) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// rawPayload mirrors the Clubhouse event schema. Optional fields use
// json.RawMessage so that a malformed value degrades instead of failing
// the whole decode.
type rawPayload struct {
	Resource  string          `json:"resource"`
	Action    string          `json:"action"`
	ID        json.RawMessage `json:"id"`
	Title     string          `json:"title"`
	Actor     json.RawMessage `json:"actor"`
	ChangedAt string          `json:"changed_at"`
	Changes   []rawChange     `json:"changes"`
}

type rawChange struct {
	Field string          `json:"field"`
	Old   json.RawMessage `json:"old"`
	New   json.RawMessage `json:"new"`
}

// Decode parses raw webhook bytes into a ParsedEvent. Resource and action
// are mandatory; every other field is parsed permissively, with malformed
// optional values degrading to their zero value. Unknown fields are ignored
// for forward compatibility.
func Decode(body []byte, contentType string) (domain.ParsedEvent, error) {
	if err := checkContentType(contentType); err != nil {
		return domain.ParsedEvent{}, err
	}

	var raw rawPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.ParsedEvent{}, decodeErrorf("malformed JSON: %v", err)
	}

	resource := strings.ToLower(strings.TrimSpace(raw.Resource))
	if resource == "" {
		return domain.ParsedEvent{}, decodeErrorf("missing resource kind")
	}
	action := strings.ToLower(strings.TrimSpace(raw.Action))
	if action == "" {
		return domain.ParsedEvent{}, decodeErrorf("missing action")
	}

	event := domain.ParsedEvent{
		Resource: resource,
		Action:   action,
		ID:       parseID(raw.ID),
		Title:    raw.Title,
		Actor:    parseActor(raw.Actor),
	}

	// Timestamps are advisory; a bad one is not worth rejecting the event.
	if raw.ChangedAt != "" {
		if ts, err := time.Parse(time.RFC3339, raw.ChangedAt); err == nil {
			event.ChangedAt = ts
		}
	}

	for _, c := range raw.Changes {
		if c.Field == "" {
			continue
		}
		event.Changes = append(event.Changes, domain.FieldChange{
			Field: c.Field,
			Old:   scalarString(c.Old),
			New:   scalarString(c.New),
		})
	}

	return event, nil
}

func checkContentType(contentType string) error {
	if contentType == "" {
		// Clubhouse omits the header on some deliveries; assume JSON.
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return decodeErrorf("unparseable content type %q", contentType)
	}
	if mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") {
		return nil
	}
	return decodeErrorf("unsupported content type %q", mediaType)
}

// parseID accepts either a JSON number or a JSON string.
func parseID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// parseActor accepts either a bare name string or an {id, name} object.
func parseActor(raw json.RawMessage) domain.Actor {
	unknown := domain.Actor{Name: "unknown"}
	if len(raw) == 0 {
		return unknown
	}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		if name == "" {
			return unknown
		}
		return domain.Actor{Name: name}
	}

	var obj struct {
		ID   json.RawMessage `json:"id"`
		Name string          `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		actor := domain.Actor{ID: parseID(obj.ID), Name: obj.Name}
		if actor.Name == "" {
			actor.Name = "unknown"
		}
		return actor
	}

	return unknown
}

// scalarString renders any JSON scalar as a string, or nil for null/absent
// and for composite values we cannot sensibly show in a diff line.
func scalarString(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		v := n.String()
		return &v
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		v := strconv.FormatBool(b)
		return &v
	}

	return nil
}
