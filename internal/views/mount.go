package views

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// MountGuard holds back a view's first real frame until the view has been
// mounted. Before that the view renders a blank placeholder. Once ready it
// never reverts.
type MountGuard struct {
	ready atomic.Bool
	once  sync.Once
	done  chan struct{}
}

// NewMountGuard returns a guard that is not yet ready.
func NewMountGuard() *MountGuard {
	return &MountGuard{done: make(chan struct{})}
}

// Ready reports whether the guarded view may render its content.
func (g *MountGuard) Ready() bool {
	return g.ready.Load()
}

// Mount schedules the switch to ready. The flip happens on its own goroutine
// after yielding once, so a frame rendered in the same turn as Mount is still
// the placeholder. Later calls do nothing.
func (g *MountGuard) Mount() {
	g.once.Do(func() {
		go func() {
			runtime.Gosched()
			g.ready.Store(true)
			close(g.done)
		}()
	})
}

// Done is closed once the guard is ready.
func (g *MountGuard) Done() <-chan struct{} {
	return g.done
}
