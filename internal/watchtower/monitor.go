package watchtower

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relabs-gnc/rocketgnc/internal/telemetry"
)

// Monitor counts recoverable faults per component within a fixed window
// (Run clears the counts at the end of each one) and escalates to the shared FaultFlag when a component's count
// exceeds its configured budget, the same threshold-escalation shape as
// the redundancy voter's majority rule, applied to a single noisy signal
// instead of several agreeing sensors.
type Monitor struct {
	flag   *FaultFlag
	budget map[string]int

	mu     sync.Mutex
	counts map[string]int
}

// NewMonitor builds a monitor against a shared flag. budget maps
// component name to the max recoverable faults tolerated per window.
func NewMonitor(flag *FaultFlag, budget map[string]int) *Monitor {
	return &Monitor{
		flag:   flag,
		budget: budget,
		counts: make(map[string]int),
	}
}

// Observe records one recoverable fault from component.
func (m *Monitor) Observe(component string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[component]++
}

// Run resets counts every window and trips the flag for any component
// that exceeded its budget during the window just ended.
func (m *Monitor) Run(ctx context.Context, window time.Duration, errLog *telemetry.ErrorLog) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			for component, budget := range m.budget {
				if n := m.counts[component]; n > budget {
					reason := fmt.Sprintf("%s: %d recoverable faults in window, budget %d", component, n, budget)
					errLog.Log(telemetry.SeverityFatal, "watchtower", reason)
					m.flag.Trip(reason)
				}
			}
			m.counts = make(map[string]int)
			m.mu.Unlock()
		}
	}
}
