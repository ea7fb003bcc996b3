package cluster

import (
	"context"
	"sync"
)

// Local is an in-process Bus. Publish delivers synchronously, in
// subscription order.
type Local struct {
	mu   sync.RWMutex
	next int
	subs map[int]func([]byte)
}

var _ Bus = (*Local)(nil)

func NewLocal() *Local {
	return &Local{subs: make(map[int]func([]byte))}
}

func (b *Local) Publish(_ context.Context, msg []byte) error {
	b.mu.RLock()
	fns := make([]func([]byte), 0, len(b.subs))
	for id := 0; id < b.next; id++ {
		if fn, ok := b.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(msg)
	}
	return nil
}

func (b *Local) Subscribe(_ context.Context, fn func([]byte)) (Subscription, error) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()
	return localSub{b: b, id: id}, nil
}

type localSub struct {
	b  *Local
	id int
}

func (s localSub) Close() error {
	s.b.mu.Lock()
	delete(s.b.subs, s.id)
	s.b.mu.Unlock()
	return nil
}
