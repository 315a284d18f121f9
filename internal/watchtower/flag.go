// Package watchtower holds the shared fatal-termination flag and a
// periodic anomaly scan over per-component recoverable-fault counts,
// generalising the teacher's intrusion shadow-monitor into a fault
// escalator for the flight pipeline.
package watchtower

import "sync"

// FaultFlag is the cross-thread termination signal: any goroutine may
// trip it, and the mission sequencer examines it once per tick. No
// exception ever crosses a goroutine boundary directly.
type FaultFlag struct {
	mu      sync.Mutex
	tripped bool
	reason  string
}

// Trip latches the flag. Only the first reason sticks.
func (f *FaultFlag) Trip(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.tripped {
		f.tripped = true
		f.reason = reason
	}
}

// Tripped reports whether the flag is set and, if so, why.
func (f *FaultFlag) Tripped() (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tripped, f.reason
}
