package model

import (
	"time"

	"gorm.io/gorm"
)

// History is one persisted drain episode.
type History struct {
	gorm.Model
	Trigger         DrainTrigger `gorm:"not null"`
	StartedAt       time.Time    `gorm:"not null"`
	FinishedAt      time.Time    `gorm:"not null"`
	PhotosSynced    int
	PhotosFailed    int
	PhotosAbandoned int
	ReadingsSynced  int
	ReadingsFailed  int
}

func NewHistory(s DrainSummary) History {
	return History{
		Trigger:         s.Trigger,
		StartedAt:       s.StartedAt,
		FinishedAt:      s.FinishedAt,
		PhotosSynced:    s.PhotosSynced,
		PhotosFailed:    s.PhotosFailed,
		PhotosAbandoned: s.PhotosAbandoned,
		ReadingsSynced:  s.ReadingsSynced,
		ReadingsFailed:  s.ReadingsFailed,
	}
}

// Abandonment records a photo dropped after exhausting its retry budget.
type Abandonment struct {
	gorm.Model
	PhotoID    string    `gorm:"not null;index"`
	PropertyID string
	CapturedAt time.Time
	Attempts   int       `gorm:"not null"`
	LastError  string
}
