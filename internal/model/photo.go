package model

import "time"

// PhotoMetadata is forwarded to the upload adapter untouched; the sync engine
// only reads CapturedAt and PropertyID to build a destination path.
type PhotoMetadata struct {
	CapturedAt   time.Time         `json:"captured_at"`
	ContentType  string            `json:"content_type,omitempty"`
	FileName     string            `json:"file_name,omitempty"`
	PropertyID   string            `json:"property_id,omitempty"`
	UnitID       string            `json:"unit_id,omitempty"`
	InspectionID string            `json:"inspection_id,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// PendingPhoto is one entry of the durable photo queue. Payload is immutable
// once stored; RetryCount is the only field that ever changes.
type PendingPhoto struct {
	ID         string        `json:"id"`
	Payload    []byte        `json:"-"`
	Metadata   PhotoMetadata `json:"metadata"`
	RetryCount int           `json:"retry_count"`
	CreatedAt  time.Time     `json:"created_at"`
	Size       int           `json:"size"`
}
