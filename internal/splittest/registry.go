package splittest

import "sync"

// SessionRegistry owns the active-session slot. The engine itself is
// stateless; whatever "the current split test" means is decided here, at the
// transport edge, behind a single mutex.
type SessionRegistry struct {
	mu      sync.RWMutex
	current *Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{}
}

// Current returns the active session, or nil when none is active.
func (r *SessionRegistry) Current() *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Replace installs a session as the active one, discarding the previous
// slot holder. Persisting the outgoing session first is the caller's job.
func (r *SessionRegistry) Replace(s *Session) {
	r.mu.Lock()
	r.current = s
	r.mu.Unlock()
}

// Clear empties the slot.
func (r *SessionRegistry) Clear() {
	r.Replace(nil)
}
