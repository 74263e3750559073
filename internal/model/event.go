package model

import "time"

type EventType string

const (
	EventCreate EventType = "CREATE"
	EventWrite  EventType = "WRITE"
	EventRemove EventType = "REMOVE"
	EventRename EventType = "RENAME"
)

// FileEvent is a change observed in the capture inbox.
type FileEvent struct {
	Type      EventType
	Path      string
	Timestamp time.Time

	// Checksum is the hex sha256 of the file content, set by the checksum
	// stage.
	Checksum string
}
