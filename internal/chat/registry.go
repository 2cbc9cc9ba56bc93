package chat

import "sync"

// SessionRegistry maps connection ids to the participant that logged in on
// them. Connections that never completed a login have no entry.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Participant
}

// NewSessionRegistry constructs an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Participant)}
}

// Put records the participant bound to connID, replacing any prior binding.
func (r *SessionRegistry) Put(connID string, p *Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[connID] = p
}

// Get returns the participant bound to connID, or nil.
func (r *SessionRegistry) Get(connID string) *Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[connID]
}

// Remove deletes the binding for connID and returns the participant that was
// bound, or nil.
func (r *SessionRegistry) Remove(connID string) *Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.sessions[connID]
	delete(r.sessions, connID)
	return p
}

// Len returns the number of logged-in connections.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
