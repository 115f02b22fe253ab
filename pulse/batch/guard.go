package batch

import "sync"

// Guard is a process-local single-flight lock keyed by job id.
type Guard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{active: make(map[string]struct{})}
}

// TryAcquire claims jobID. It returns a release func and true, or nil and
// false when another run holds the job.
func (g *Guard) TryAcquire(jobID string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.active[jobID]; busy {
		return nil, false
	}
	g.active[jobID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, jobID)
			g.mu.Unlock()
		})
	}, true
}

// Active reports whether jobID is currently held.
func (g *Guard) Active(jobID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.active[jobID]
	return busy
}
