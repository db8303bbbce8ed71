package session

import "sync"

// Registry maintains a thread-safe collection of sessions.
type Registry struct {
	mu sync.Mutex
	m  map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{m: map[string]*Session{}}
}

// Get retrieves a session by ID, nil when absent.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[id]
}

// Set stores or replaces a session.
func (r *Registry) Set(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[s.ID] = s
}

// List returns all sessions as a slice.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]*Session, 0, len(r.m))
	for _, s := range r.m {
		list = append(list, s)
	}
	return list
}

// Delete removes a session by ID and returns it, nil when absent.
func (r *Registry) Delete(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.m[id]
	if s != nil {
		delete(r.m, id)
	}
	return s
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}
