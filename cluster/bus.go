// Package cluster fans key and region invalidations out to every process that
// shares a cache region, so each process's validator rejects stale naked puts.
package cluster

import "context"

// Bus carries invalidation events between nodes.
// Use Local for in-process nodes (tests, single binary), or Redis across processes.
type Bus interface {
	// Publish delivers msg to every subscriber, including the sender's own.
	Publish(ctx context.Context, msg []byte) error
	// Subscribe calls fn for every message until the Subscription is closed.
	// fn must not block for long.
	Subscribe(ctx context.Context, fn func([]byte)) (Subscription, error)
}

type Subscription interface {
	Close() error
}
