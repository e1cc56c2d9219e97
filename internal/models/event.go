package models

import "time"

// EventType classifies a file-system change to a ticket file.
type EventType string

const (
	EventAdd    EventType = "add"
	EventChange EventType = "change"
	EventUnlink EventType = "unlink"
)

// ChangeEvent is emitted by the watcher when a ticket file changes on disk.
type ChangeEvent struct {
	EventType EventType `json:"eventType"`
	Filename  string    `json:"filename"`
	ProjectID string    `json:"projectId"`
	Timestamp time.Time `json:"timestamp"`
}
