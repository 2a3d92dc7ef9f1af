// Package render turns classified events into Zulip-ready messages using a
// per-kind template table. Rendering never fails on content: anything the
// templates cannot express degrades to fallback text. The only error is an
// unresolvable target stream.
package render

import (
	"fmt"
	"strings"

	"github.com/anagpal/clubhouse-zulip-bridge/internal/clubhouse"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/domain"
)

// Zulip server limits.
const (
	maxContentLength = 10000
	maxTopicLength   = 60
)

const defaultTopic = "clubhouse"

// Error reports an integration whose Zulip routing cannot be resolved.
// This is an operator configuration problem, not a content problem.
type Error struct {
	IntegrationID string
}

func (e *Error) Error() string {
	return fmt.Sprintf("integration %s has no target stream configured", e.IntegrationID)
}

// templates maps each notification kind to a pure rendering function.
// Keeping the table data-driven keeps it unit-testable away from HTTP.
var templates = map[clubhouse.Kind]func(domain.ParsedEvent) string{
	clubhouse.StoryCreated: func(e domain.ParsedEvent) string {
		return fmt.Sprintf("**%s** created story **%s**.", actorName(e), title(e))
	},
	clubhouse.StoryUpdated: func(e domain.ParsedEvent) string {
		return renderUpdate(e, "story")
	},
	clubhouse.StoryDeleted: func(e domain.ParsedEvent) string {
		return fmt.Sprintf("**%s** deleted story **%s**.", actorName(e), title(e))
	},
	clubhouse.EpicCreated: func(e domain.ParsedEvent) string {
		return fmt.Sprintf("**%s** created epic **%s**.", actorName(e), title(e))
	},
	clubhouse.EpicUpdated: func(e domain.ParsedEvent) string {
		return renderUpdate(e, "epic")
	},
	clubhouse.EpicDeleted: func(e domain.ParsedEvent) string {
		return fmt.Sprintf("**%s** deleted epic **%s**.", actorName(e), title(e))
	},
}

// Render resolves the target stream/topic from the integration and renders
// the message body for the classified event. Unsupported kinds render a
// generic notice so unmapped upstream event types stay visible to operators.
func Render(integration domain.Integration, event domain.ParsedEvent, kind clubhouse.Kind) (domain.RenderedMessage, error) {
	if integration.Stream == "" {
		return domain.RenderedMessage{}, &Error{IntegrationID: integration.ID}
	}

	render, ok := templates[kind]
	if !ok {
		render = renderUnsupported
	}

	content := render(event)
	if content == "" {
		content = renderUnsupported(event)
	}

	return domain.RenderedMessage{
		Stream:  integration.Stream,
		Topic:   resolveTopic(integration, event),
		Content: truncate(content, maxContentLength),
	}, nil
}

func renderUpdate(e domain.ParsedEvent, noun string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** updated %s **%s**.", actorName(e), noun, title(e))

	for _, c := range e.Changes {
		fmt.Fprintf(&b, "\n- %s: %s → %s", escape(c.Field), changeValue(c.Old), changeValue(c.New))
	}

	return b.String()
}

func renderUnsupported(e domain.ParsedEvent) string {
	return fmt.Sprintf("**%s** performed an unhandled action (`%s` on %s) for **%s**.",
		actorName(e), escape(e.Action), escape(e.Resource), title(e))
}

func resolveTopic(integration domain.Integration, event domain.ParsedEvent) string {
	if integration.Topic != "" {
		return truncate(integration.Topic, maxTopicLength)
	}
	if event.Title != "" {
		return truncate(event.Title, maxTopicLength)
	}
	return defaultTopic
}

func actorName(e domain.ParsedEvent) string {
	if e.Actor.Name == "" {
		return "unknown"
	}
	return escape(e.Actor.Name)
}

func title(e domain.ParsedEvent) string {
	if e.Title == "" {
		return "(untitled)"
	}
	return escape(e.Title)
}

func changeValue(v *string) string {
	if v == nil || *v == "" {
		return "(none)"
	}
	return escape(*v)
}

// escaper neutralizes characters that are markup-significant in Zulip
// message formatting when they appear inside interpolated user content.
var escaper = strings.NewReplacer(
	"\\", "\\\\",
	"*", "\\*",
	"_", "\\_",
	"`", "\\`",
	"[", "\\[",
	"]", "\\]",
	"~", "\\~",
)

func escape(s string) string {
	return escaper.Replace(s)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
