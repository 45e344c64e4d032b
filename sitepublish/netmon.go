package sitepublish

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// NetworkMonitor probes portal reachability on an interval and fires the
// restore callback on every unreachable -> reachable transition.
type NetworkMonitor struct {
	mu        sync.Mutex
	reachable bool
	probe     func(ctx context.Context) error
	interval  time.Duration
	onRestore func(ctx context.Context)
}

func NewNetworkMonitor(client Client, onRestore func(ctx context.Context)) *NetworkMonitor {
	interval := 30 * time.Second
	if v := strings.TrimSpace(os.Getenv("NET_PROBE_INTERVAL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			interval = time.Duration(n) * time.Second
		}
	}
	return &NetworkMonitor{
		// optimistic until the first probe says otherwise
		reachable: true,
		probe:     client.Ping,
		interval:  interval,
		onRestore: onRestore,
	}
}

func (m *NetworkMonitor) Reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable
}

// setReachable records the probe result and returns true on a restore
// transition.
func (m *NetworkMonitor) setReachable(reachable bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	restored := reachable && !m.reachable
	m.reachable = reachable
	return restored
}

// Run loops until the context is done. Call it from a goroutine.
func (m *NetworkMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := m.probe(probeCtx)
			cancel()
			if restored := m.setReachable(err == nil); restored && m.onRestore != nil {
				m.onRestore(ctx)
			}
		}
	}
}
