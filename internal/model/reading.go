package model

import "time"

// Reading is a numeric meter reading captured in the field. ID is assigned
// locally when the reading is queued and is never sent as a primary key.
type Reading struct {
	ID            string    `json:"id"`
	SourceID      string    `json:"source_id"`
	Value         float64   `json:"value"`
	EffectiveDate time.Time `json:"effective_date"`
	Comment       string    `json:"comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
