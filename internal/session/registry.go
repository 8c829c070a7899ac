package session

import (
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Registry holds the live sessions keyed by Identity.
//
// Sessions are registered by the command goroutine and removed by
// disconnect handlers running on protocol callback goroutines, so every
// operation takes the registry lock. A lookup observes either the entry
// or its absence, never a partially removed session.
//
// All public methods are thread-safe.
type Registry struct {
	sessions map[Identity]*Session
	mu       sync.RWMutex
	logger   Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[Identity]*Session),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// Register inserts s under id, replacing any existing entry.
func (r *Registry) Register(id Identity, s *Session) {
	r.mu.Lock()
	_, replaced := r.sessions[id]
	r.sessions[id] = s
	logger := r.logger
	r.mu.Unlock()

	logger.Debug("session registered", "client", id.String(), "replaced", replaced)
}

// Lookup returns the session registered under id.
func (r *Registry) Lookup(id Identity) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes the entry for id. Removing an unknown identity is a no-op.
func (r *Registry) Remove(id Identity) {
	r.mu.Lock()
	_, existed := r.sessions[id]
	delete(r.sessions, id)
	logger := r.logger
	r.mu.Unlock()

	if existed {
		logger.Debug("session removed", "client", id.String())
	}
}

// Keys returns a snapshot of the registered identities sorted by host,
// then client identifier.
func (r *Registry) Keys() []Identity {
	r.mu.RLock()
	keys := make([]Identity, 0, len(r.sessions))
	for id := range r.sessions {
		keys = append(keys, id)
	}
	r.mu.RUnlock()

	sortIdentities(keys)
	return keys
}

// Sessions returns a snapshot of the registered sessions in Keys order.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return less(out[i].Identity, out[j].Identity) })
	return out
}

// FindByClientID returns every session whose client identifier matches,
// across all hosts, in Keys order.
func (r *Registry) FindByClientID(clientID string) []*Session {
	var out []*Session
	for _, s := range r.Sessions() {
		if s.Identity.ClientID == clientID {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func sortIdentities(ids []Identity) {
	sort.Slice(ids, func(i, j int) bool { return less(ids[i], ids[j]) })
}

func less(a, b Identity) bool {
	if a.Host != b.Host {
		return a.Host < b.Host
	}
	return a.ClientID < b.ClientID
}
