package scanner

import "sync"

// Registry enforces the one-session-per-device rule.
type Registry struct {
	mu   sync.Mutex
	open map[string]*Session
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{open: make(map[string]*Session)}
}

func (r *Registry) claim(deviceID string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.open[deviceID]; taken {
		return ErrDeviceBusy
	}
	r.open[deviceID] = s
	return nil
}

func (r *Registry) release(deviceID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open[deviceID] == s {
		delete(r.open, deviceID)
	}
}
