package simnet

import "sync"

// Switch is the shared partition flag. When disabled every fabric drops the
// requests it would forward. A nil *Switch is always enabled.
type Switch struct {
	mu      sync.RWMutex
	enabled bool
}

// NewSwitch creates a switch in the given state.
func NewSwitch(enabled bool) *Switch {
	return &Switch{enabled: enabled}
}

// Enabled reports whether traffic flows.
func (s *Switch) Enabled() bool {
	if s == nil {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// Set changes the switch state.
func (s *Switch) Set(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// Enable lets traffic flow.
func (s *Switch) Enable() { s.Set(true) }

// Disable partitions every node from every other.
func (s *Switch) Disable() { s.Set(false) }
