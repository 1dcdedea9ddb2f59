package settings

import "sync"

// ExitGuard holds the cached "block exit" flag read on the window-close path.
// It has its own lock and is never held together with the conversation lock.
type ExitGuard struct {
	mu          sync.RWMutex
	preventExit bool
}

// Get returns the cached flag.
func (g *ExitGuard) Get() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.preventExit
}

func (g *ExitGuard) set(preventExit bool) {
	g.mu.Lock()
	g.preventExit = preventExit
	g.mu.Unlock()
}
