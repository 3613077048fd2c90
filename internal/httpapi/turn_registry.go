package httpapi

import (
	"sync"
	"sync/atomic"
)

// TurnRegistry tracks in-flight voice and chat turns so shutdown can wait
// for them before the store is closed. Once draining, new turns are refused.
//
// mu makes the draining check and wg.Add atomic; otherwise a turn could be
// added after StartDraining and Wait had already returned.
type TurnRegistry struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	count    atomic.Int64
}

func NewTurnRegistry() *TurnRegistry {
	return &TurnRegistry{}
}

// Add registers a turn. It returns false while draining.
func (tr *TurnRegistry) Add() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.draining {
		return false
	}
	tr.wg.Add(1)
	tr.count.Add(1)
	return true
}

// Done must be called exactly once per successful Add.
func (tr *TurnRegistry) Done() {
	tr.count.Add(-1)
	tr.wg.Done()
}

func (tr *TurnRegistry) StartDraining() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.draining = true
}

func (tr *TurnRegistry) IsDraining() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.draining
}

func (tr *TurnRegistry) ActiveCount() int64 {
	return tr.count.Load()
}

// Wait blocks until every added turn is done.
func (tr *TurnRegistry) Wait() {
	tr.wg.Wait()
}
