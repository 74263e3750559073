package daemon

import (
	"sync"

	"fieldsync/internal/model"
)

// runState is the in-memory sync run state. Only the orchestrator writes it;
// everything else reads a StatusSnapshot.
type runState struct {
	mu sync.Mutex

	online          bool
	syncing         bool
	paused          bool
	stopped         bool
	pendingUploads  int
	pendingReadings int
	lastSummary     *model.DrainSummary
	current         *model.Progress
}

func (s *runState) setOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = online
}

func (s *runState) setPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

func (s *runState) setPending(uploads, readings int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uploads >= 0 {
		s.pendingUploads = uploads
	}
	if readings >= 0 {
		s.pendingReadings = readings
	}
}

func (s *runState) setProgress(p *model.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = p
}

// finish leaves the Syncing state. Empty episodes do not replace the last
// summary.
func (s *runState) finish(summary model.DrainSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncing = false
	s.current = nil
	if !summary.Empty() {
		s.lastSummary = &summary
	}
}

func (s *runState) snapshot() model.StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := model.StatusSnapshot{
		IsOnline:        s.online,
		SyncInProgress:  s.syncing,
		Paused:          s.paused,
		PendingUploads:  s.pendingUploads,
		PendingReadings: s.pendingReadings,
	}
	if s.lastSummary != nil {
		snap.LastSummary = new(*s.lastSummary)
	}
	if s.current != nil {
		snap.Current = new(*s.current)
	}

	return snap
}
