package model

import "time"

type DrainTrigger string

const (
	TriggerManual       DrainTrigger = "MANUAL"
	TriggerConnectivity DrainTrigger = "CONNECTIVITY"
	TriggerResume       DrainTrigger = "RESUME"
	TriggerStartup      DrainTrigger = "STARTUP"
)

// DrainSummary reports the outcome of one drain episode. Abandoned photos are
// also counted in PhotosFailed.
type DrainSummary struct {
	Trigger         DrainTrigger `json:"trigger"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at"`
	PhotosSynced    int          `json:"photos_synced"`
	PhotosFailed    int          `json:"photos_failed"`
	PhotosAbandoned int          `json:"photos_abandoned"`
	ReadingsSynced  int          `json:"readings_synced"`
	ReadingsFailed  int          `json:"readings_failed"`
}

func (s DrainSummary) Empty() bool {
	return s.PhotosSynced+s.PhotosFailed+s.ReadingsSynced+s.ReadingsFailed == 0
}
