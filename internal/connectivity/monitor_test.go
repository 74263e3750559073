package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestMonitorEmitsOnlyOnChange(t *testing.T) {
	m := NewMonitor(false)
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Set(false)
	select {
	case tr := <-ch:
		t.Fatalf("unexpected transition %+v", tr)
	default:
	}

	m.Set(true)
	select {
	case tr := <-ch:
		if !tr.Online {
			t.Fatalf("expected online transition, got %+v", tr)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a transition")
	}

	if !m.Online() {
		t.Fatal("expected monitor to report online")
	}
}

func TestMonitorSlowSubscriberSeesLatest(t *testing.T) {
	m := NewMonitor(false)
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Set(true)
	m.Set(false)
	m.Set(true)

	tr := <-ch
	if !tr.Online {
		t.Fatalf("expected latest transition to be online, got %+v", tr)
	}
	select {
	case extra := <-ch:
		t.Fatalf("expected a single buffered transition, got extra %+v", extra)
	default:
	}
}

func TestMonitorUnsubscribeClosesChannel(t *testing.T) {
	m := NewMonitor(true)
	ch, cancel := m.Subscribe()
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed")
	}

	m.Set(false)
}

type scriptedProber struct {
	results chan bool
}

func (p *scriptedProber) Probe(ctx context.Context) bool {
	select {
	case r := <-p.results:
		return r
	case <-ctx.Done():
		return false
	}
}

func TestMonitorRunFeedsProbeResults(t *testing.T) {
	m := NewMonitor(false)
	ch, cancel := m.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	p := &scriptedProber{results: make(chan bool)}
	go m.Run(ctx, p, time.Millisecond)

	p.results <- true
	first := <-ch
	if !first.Online {
		t.Fatalf("expected first probe to bring monitor online, got %+v", first)
	}
	p.results <- false
	second := <-ch
	if second.Online {
		t.Fatalf("expected second probe to take monitor offline, got %+v", second)
	}
}

func TestHTTPProber(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNoContent)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	p := NewHTTPProber(srv.URL, time.Second)
	if !p.Probe(context.Background()) {
		t.Fatal("expected reachable server to probe online")
	}

	status.Store(http.StatusNotFound)
	if !p.Probe(context.Background()) {
		t.Fatal("a 404 still proves connectivity")
	}

	status.Store(http.StatusBadGateway)
	if p.Probe(context.Background()) {
		t.Fatal("expected 502 to probe offline")
	}

	srv.Close()
	if p.Probe(context.Background()) {
		t.Fatal("expected closed server to probe offline")
	}
}
