package types

import "time"

// EventType identifies what an Event describes
type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventCreated  EventType = "created"
	EventUpdated  EventType = "updated"
	EventDeleted  EventType = "deleted"
	EventCleared  EventType = "cleared"
	EventLog      EventType = "log"
)

// Event is a single message on the job event feed (SSE or WebSocket)
type Event struct {
	Type        EventType `json:"type"`
	Job         *Job      `json:"job,omitempty"`
	JobID       string    `json:"jobId,omitempty"`
	Jobs        []Job     `json:"jobs,omitempty"`
	ActiveJobID string    `json:"activeJobId,omitempty"`
	Count       int       `json:"count,omitempty"`
	Line        string    `json:"line,omitempty"`
	Lines       []string  `json:"lines,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
