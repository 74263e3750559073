package model

// Progress describes the photo currently being uploaded.
type Progress struct {
	PhotoID string `json:"photo_id"`
	Sent    int64  `json:"sent"`
	Total   int64  `json:"total"`
}

// StatusSnapshot is the read-only projection of the sync run state.
type StatusSnapshot struct {
	IsOnline        bool          `json:"isOnline"`
	SyncInProgress  bool          `json:"syncInProgress"`
	Paused          bool          `json:"paused"`
	PendingUploads  int           `json:"pendingUploads"`
	PendingReadings int           `json:"pendingReadings"`
	LastSummary     *DrainSummary `json:"lastSummary,omitempty"`
	Current         *Progress     `json:"current,omitempty"`
}
