package engine

import (
	"sync"
	"sync/atomic"

	"arbmon/internal/models"
)

// pairState is the per-pair state machine: IDLE or OPEN, with at most one
// OpenPosition live at a time. Mutation goes through open/close, both of
// which hold mu for the whole read-modify-write; isOpen is kept as a
// separate atomic flag so callers that only need a yes/no answer (the
// engine's own fast-path check before deciding whether to look for an
// exit, and any read-only status surface) never have to take the lock.
type pairState struct {
	mu       sync.RWMutex
	state    models.State
	position *models.OpenPosition
	isOpen   int32
}

func newPairState() *pairState {
	return &pairState{state: models.StateIdle}
}

func (p *pairState) State() models.State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// IsOpen is the lock-free fast path: safe to call from any goroutine.
func (p *pairState) IsOpen() bool {
	return atomic.LoadInt32(&p.isOpen) == 1
}

// Position returns a copy of the current OpenPosition, if any.
func (p *pairState) Position() (models.OpenPosition, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.position == nil {
		return models.OpenPosition{}, false
	}
	return *p.position, true
}

// open transitions IDLE -> OPEN, storing pos. Returns false without
// mutating anything if a position is already open — entry while OPEN is
// silently ignored, per spec §4.C's state machine.
func (p *pairState) open(pos models.OpenPosition) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == models.StateOpen {
		return false
	}
	p.state = models.StateOpen
	p.position = &pos
	atomic.StoreInt32(&p.isOpen, 1)
	return true
}

// close transitions OPEN -> IDLE, returning the position that was open.
// Returns false if there was nothing open to close.
func (p *pairState) close() (models.OpenPosition, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != models.StateOpen || p.position == nil {
		return models.OpenPosition{}, false
	}
	pos := *p.position
	p.state = models.StateIdle
	p.position = nil
	atomic.StoreInt32(&p.isOpen, 0)
	return pos, true
}
