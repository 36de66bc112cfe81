package ready

import "sync"

// Gate buffers calls made before initialization completes. Queued callbacks
// run in enqueue order when the gate opens, before any newly arriving call.
// The gate can close again during a catalog refresh; callbacks queued while
// closed are released exactly once on the next open.
type Gate struct {
	mu      sync.Mutex
	open    bool
	pending []func()
}

// New creates a closed gate
func New() *Gate {
	return &Gate{}
}

// Do runs fn immediately when the gate is open, otherwise queues it
func (g *Gate) Do(fn func()) {
	g.mu.Lock()
	if !g.open {
		g.pending = append(g.pending, fn)
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	fn()
}

// Open releases queued callbacks in order and leaves the gate open. Callbacks
// queued by a released callback run in the same drain pass, still in order.
func (g *Gate) Open() {
	for {
		g.mu.Lock()
		if len(g.pending) == 0 {
			g.open = true
			g.mu.Unlock()
			return
		}
		batch := g.pending
		g.pending = nil
		g.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}

// Close makes subsequent Do calls queue until the next Open
func (g *Gate) Close() {
	g.mu.Lock()
	g.open = false
	g.mu.Unlock()
}

// IsOpen reports whether calls currently execute immediately
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}
