package huehttps

import "sync"

// Signal bits consumed by the dispatch worker. Network-ready is level state
// set and cleared by connectivity events; trigger is consumed by the worker
// on wakeup; abort stops the next queued request from starting; exit
// terminates the worker.
const (
	evtNetReady uint32 = 1 << iota
	evtTrigger
	evtAbort
	evtExit
)

// signalGroup is a small wait-for-any-bits primitive: a bitmask guarded by a
// mutex with a broadcast channel that is closed and replaced on every set.
type signalGroup struct {
	mu   sync.Mutex
	bits uint32
	wake chan struct{}
}

func newSignalGroup() *signalGroup {
	return &signalGroup{wake: make(chan struct{})}
}

// set raises the bits in mask and wakes all waiters.
func (g *signalGroup) set(mask uint32) {
	g.mu.Lock()
	g.bits |= mask
	close(g.wake)
	g.wake = make(chan struct{})
	g.mu.Unlock()
}

// clear lowers the bits in mask. Waiters are not woken; clearing never
// satisfies a wait.
func (g *signalGroup) clear(mask uint32) {
	g.mu.Lock()
	g.bits &^= mask
	g.mu.Unlock()
}

// get returns a snapshot of the current bits.
func (g *signalGroup) get() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bits
}

// wait blocks until any bit in mask is set, then lowers the bits in consume
// and returns the snapshot that satisfied the wait.
func (g *signalGroup) wait(mask, consume uint32) uint32 {
	for {
		g.mu.Lock()
		if b := g.bits; b&mask != 0 {
			g.bits &^= consume
			g.mu.Unlock()
			return b
		}
		ch := g.wake
		g.mu.Unlock()
		<-ch
	}
}
