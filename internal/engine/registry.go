package engine

import (
	"sync"

	"github.com/krishiv1545/django-orm-cost/internal/trail"
	"github.com/krishiv1545/django-orm-cost/internal/uow"
)

// unit pairs a live unit of work with its engine-side resources: the
// optional trail writer and the context-cleanup cancel hook.
type unit struct {
	u    *uow.UnitOfWork
	w    *trail.Writer
	stop func() bool
}

// registry maps context IDs to active units. One unit per context; lookups
// vastly outnumber attach/detach, hence the RWMutex.
type registry struct {
	mu    sync.RWMutex
	units map[string]*unit
}

func newRegistry() *registry {
	return &registry{units: make(map[string]*unit)}
}

// attach registers un under contextID. If a unit is already active for the
// context it stays in place and is returned with ok=false.
func (r *registry) attach(contextID string, un *unit) (*unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.units[contextID]; ok {
		return existing, false
	}
	r.units[contextID] = un
	return un, true
}

func (r *registry) lookup(contextID string) (*unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	un, ok := r.units[contextID]
	return un, ok
}

func (r *registry) detach(contextID string) (*unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	un, ok := r.units[contextID]
	if ok {
		delete(r.units, contextID)
	}
	return un, ok
}

// detachIf removes contextID only while it still maps to un. Keeps the
// cleanup hook from tearing down a successor unit that reused the context.
func (r *registry) detachIf(contextID string, un *unit) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.units[contextID] != un {
		return false
	}
	delete(r.units, contextID)
	return true
}

func (r *registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.units)
}
