package clubhouse

import (
	"github.com/anagpal/clubhouse-zulip-bridge/internal/domain"
)

// Kind is the closed set of notification categories the bridge renders.
// Anything outside the table below is Unsupported, which is a valid
// terminal classification rather than an error: new resource/action pairs
// introduced upstream must be mapped here deliberately.
type Kind string

const (
	StoryCreated Kind = "story_created"
	StoryUpdated Kind = "story_updated"
	StoryDeleted Kind = "story_deleted"
	EpicCreated  Kind = "epic_created"
	EpicUpdated  Kind = "epic_updated"
	EpicDeleted  Kind = "epic_deleted"
	Unsupported  Kind = "unsupported"
)

var classifications = map[[2]string]Kind{
	{domain.ResourceStory, domain.ActionCreate}: StoryCreated,
	{domain.ResourceStory, domain.ActionUpdate}: StoryUpdated,
	{domain.ResourceStory, domain.ActionDelete}: StoryDeleted,
	{domain.ResourceEpic, domain.ActionCreate}:  EpicCreated,
	{domain.ResourceEpic, domain.ActionUpdate}:  EpicUpdated,
	{domain.ResourceEpic, domain.ActionDelete}:  EpicDeleted,
}

// Classify maps a decoded event to its notification kind. It is pure and
// total: unrecognized input classifies as Unsupported, never an error.
func Classify(event domain.ParsedEvent) Kind {
	if kind, ok := classifications[[2]string{event.Resource, event.Action}]; ok {
		return kind
	}
	return Unsupported
}
