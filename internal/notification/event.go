package notification

import (
	"encoding/json"
	"time"
)

const (
	EventTypeImageUpdate       = "image_update"
	EventTypeProjectListUpdate = "project_list_update"
)

// Event is a push notification for connected clients.
type Event struct {
	EventType  string
	Project    string
	Projects   []string
	OccurredAt time.Time
}

func NewImageUpdate(project string) Event {
	return Event{
		EventType:  EventTypeImageUpdate,
		Project:    project,
		OccurredAt: time.Now().UTC(),
	}
}

// NewProjectListUpdate copies projects so later mutation by the caller does
// not leak into queued events.
func NewProjectListUpdate(projects []string) Event {
	list := make([]string, len(projects))
	copy(list, projects)
	return Event{
		EventType:  EventTypeProjectListUpdate,
		Projects:   list,
		OccurredAt: time.Now().UTC(),
	}
}

func (e Event) Type() string {
	return e.EventType
}

func (e Event) Timestamp() time.Time {
	return e.OccurredAt
}

// MarshalJSON renders the wire payload for the event type:
// {"type":"image_update","project":...} or
// {"type":"project_list_update","projects":[...]}.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.EventType {
	case EventTypeProjectListUpdate:
		projects := e.Projects
		if projects == nil {
			projects = []string{}
		}
		return json.Marshal(struct {
			Type     string   `json:"type"`
			Projects []string `json:"projects"`
		}{Type: e.EventType, Projects: projects})
	default:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Project string `json:"project"`
		}{Type: e.EventType, Project: e.Project})
	}
}
