package putguard

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// pendingPut is one owner's reservation to write key after a load.
type pendingPut[K comparable] struct {
	key       K
	owner     Owner
	timestamp int64 // unix nanos at registration
	completed atomic.Bool
}

func newPendingPut[K comparable](key K, owner Owner, now int64) *pendingPut[K] {
	return &pendingPut[K]{key: key, owner: owner, timestamp: now}
}

// pendingPutMap holds the pending puts of a single key.
//
// Representation is Empty (one == nil && many == nil), One (one != nil) or
// Many (many != nil). Most keys only ever see one concurrent loader so the
// map is not allocated until a second owner shows up; once it has been it is
// kept for the lifetime of the pendingPutMap.
//
// All methods except lock require the caller to hold the lock.
type pendingPutMap[K comparable] struct {
	sem  *semaphore.Weighted
	one  *pendingPut[K]
	many map[Owner]*pendingPut[K]
}

func newPendingPutMap[K comparable](first *pendingPut[K]) *pendingPutMap[K] {
	return &pendingPutMap[K]{sem: semaphore.NewWeighted(1), one: first}
}

func (m *pendingPutMap[K]) put(p *pendingPut[K]) {
	if p == nil {
		return
	}
	if m.many != nil {
		m.many[p.owner] = p
		return
	}
	if m.one == nil || m.one.owner == p.owner {
		m.one = p
		return
	}
	m.many = make(map[Owner]*pendingPut[K], 4)
	m.many[m.one.owner] = m.one
	m.many[p.owner] = p
	m.one = nil
}

// remove detaches and returns owner's pending put, or nil.
func (m *pendingPutMap[K]) remove(owner Owner) *pendingPut[K] {
	if m.many != nil {
		p, ok := m.many[owner]
		if !ok {
			return nil
		}
		delete(m.many, owner)
		return p
	}
	if m.one != nil && m.one.owner == owner {
		p := m.one
		m.one = nil
		return p
	}
	return nil
}

func (m *pendingPutMap[K]) size() int {
	if m.many != nil {
		return len(m.many)
	}
	if m.one != nil {
		return 1
	}
	return 0
}

// invalidate completes every held pending put and empties the map.
func (m *pendingPutMap[K]) invalidate() {
	if m.many != nil {
		for owner, p := range m.many {
			p.completed.Store(true)
			delete(m.many, owner)
		}
		return
	}
	if m.one != nil {
		m.one.completed.Store(true)
		m.one = nil
	}
}

// lock acquires the map lock, waiting at most timeout.
// A non-positive timeout only tries once.
func (m *pendingPutMap[K]) lock(timeout time.Duration) bool {
	if m.sem.TryAcquire(1) {
		return true
	}
	if timeout <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return m.sem.Acquire(ctx, 1) == nil
}

func (m *pendingPutMap[K]) unlock() { m.sem.Release(1) }
