// Package connectivity tracks whether the device is online. The signal is a
// hint about whether a sync attempt is worthwhile, never a promise that it
// will succeed.
package connectivity

import (
	"context"
	"sync"
	"time"

	"fieldsync/internal/logger"

	"go.uber.org/zap"
)

type Transition struct {
	Online bool
	At     time.Time
}

// Prober checks reachability of the remote side.
type Prober interface {
	Probe(ctx context.Context) bool
}

type Monitor struct {
	mu     sync.RWMutex
	online bool
	subs   map[int]chan Transition
	nextID int
}

func NewMonitor(initialOnline bool) *Monitor {
	return &Monitor{
		online: initialOnline,
		subs:   make(map[int]chan Transition),
	}
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe returns a channel of transitions and a function that cancels the
// subscription. A subscriber that falls behind misses intermediate
// transitions but always sees the latest one.
func (m *Monitor) Subscribe() (<-chan Transition, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Transition, 1)
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// Set feeds a connectivity signal. Subscribers are notified only when the
// state actually changes.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online

	t := Transition{Online: online, At: time.Now()}
	logger.Log.Info("connectivity changed",
		zap.Bool("online", online))

	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- t
	}
}

// Run polls p every interval and feeds the result into Set until ctx is done.
func (m *Monitor) Run(ctx context.Context, p Prober, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Set(p.Probe(ctx))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Set(p.Probe(ctx))
		}
	}
}
