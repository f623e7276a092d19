// Package turnstile implements the per-image turn gate (§4.3): operations
// targeting the same image execute in admission order, while operations
// on distinct images proceed fully in parallel.
//
// Each image ID owns an ordered pending list of request IDs (its
// "ordering table") plus a condition variable. WaitMyTurn blocks until its
// request ID reaches the head of that list; Release pops the head and
// wakes the next waiter.
package turnstile

import "sync"

// Table owns one gate per image ID.
type Table struct {
	mu    sync.Mutex
	gates map[uint64]*gate
}

type gate struct {
	cond    *sync.Cond
	pending []uint64
}

// NewTable returns an empty turnstile table.
func NewTable() *Table {
	return &Table{gates: make(map[uint64]*gate)}
}

func (t *Table) gateFor(imageID uint64) *gate {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.gates[imageID]
	if !ok {
		g = &gate{}
		g.cond = sync.NewCond(&t.mu)
		t.gates[imageID] = g
	}
	return g
}

// Admit appends reqID to imageID's ordering table. Called by the
// dispatcher just before it admits the request to the work queue (§4.1),
// so the table reflects admission order even before the request reaches
// the head of the work queue.
func (t *Table) Admit(imageID, reqID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.gates[imageID]
	if !ok {
		g = &gate{}
		g.cond = sync.NewCond(&t.mu)
		t.gates[imageID] = g
	}
	g.pending = append(g.pending, reqID)
}

// WaitMyTurn blocks until reqID is at the head of imageID's ordering
// table.
func (t *Table) WaitMyTurn(imageID, reqID uint64) {
	g := t.gateFor(imageID)

	g.cond.L.Lock()
	defer g.cond.L.Unlock()
	for len(g.pending) == 0 || g.pending[0] != reqID {
		g.cond.Wait()
	}
}

// Cancel removes reqID from imageID's ordering table wherever it sits
// (not only at the head), for a request that was admitted into the table
// but then rejected by the queue before ever reaching a worker. Unlike
// Release, it must find the entry regardless of position, or a rejected
// request's ID would sit in the table forever with nothing left to ever
// release it, wedging every later admission for that image.
func (t *Table) Cancel(imageID, reqID uint64) {
	g := t.gateFor(imageID)

	g.cond.L.Lock()
	defer g.cond.L.Unlock()
	for i, id := range g.pending {
		if id == reqID {
			g.pending = append(g.pending[:i], g.pending[i+1:]...)
			g.cond.Broadcast()
			return
		}
	}
}

// Release removes reqID from the head of imageID's ordering table and
// wakes the next waiter. A no-op if reqID is not the current head
// (defensive: a caller that already lost its turn, or double-releases,
// does not corrupt the table).
func (t *Table) Release(imageID, reqID uint64) {
	g := t.gateFor(imageID)

	g.cond.L.Lock()
	defer g.cond.L.Unlock()
	if len(g.pending) == 0 || g.pending[0] != reqID {
		return
	}
	g.pending = g.pending[1:]
	g.cond.Broadcast()
}
