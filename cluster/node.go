package cluster

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/unkn0wn-root/putguard"
	"github.com/vmihailenco/msgpack/v5"
)

type Kind uint8

const (
	KindKey Kind = iota + 1
	KindRegion
)

// Event is the wire form of an invalidation.
type Event struct {
	Node string `msgpack:"n"`
	Kind Kind   `msgpack:"k"`
	Key  string `msgpack:"key,omitempty"`
}

// Node binds a local validator to a Bus. It satisfies access.Invalidator.
type Node struct {
	id  string
	v   *putguard.Validator[string]
	bus Bus
	log putguard.Logger
	sub Subscription
}

type Options struct {
	// ID identifies this node on the bus. Default: random UUID.
	ID string
	// Logger is optional. If nil, logs are discarded.
	Logger putguard.Logger
}

// NewNode subscribes to bus and applies peers' invalidations to v.
func NewNode(ctx context.Context, v *putguard.Validator[string], bus Bus, opts Options) (*Node, error) {
	n := &Node{id: opts.ID, v: v, bus: bus, log: opts.Logger}
	if n.id == "" {
		n.id = uuid.NewString()
	}
	if n.log == nil {
		n.log = putguard.NopLogger{}
	}
	sub, err := bus.Subscribe(ctx, n.handle)
	if err != nil {
		return nil, err
	}
	n.sub = sub
	return n, nil
}

func (n *Node) ID() string { return n.id }

// Close stops receiving peers' invalidations.
func (n *Node) Close() error { return n.sub.Close() }

// InvalidateKey invalidates key locally, then tells the peers. Either step
// failing fails the invalidation.
func (n *Node) InvalidateKey(ctx context.Context, key string) error {
	if !n.v.InvalidateKey(key) {
		return putguard.ErrInvalidationFailed
	}
	return n.publish(ctx, Event{Node: n.id, Kind: KindKey, Key: key})
}

// InvalidateRegion invalidates the whole region locally, then tells the peers.
func (n *Node) InvalidateRegion(ctx context.Context) error {
	if !n.v.InvalidateRegion() {
		return putguard.ErrInvalidationFailed
	}
	return n.publish(ctx, Event{Node: n.id, Kind: KindRegion})
}

func (n *Node) publish(ctx context.Context, ev Event) error {
	b, err := msgpack.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("%w: encode event: %w", putguard.ErrInvalidationFailed, err)
	}
	if err := n.bus.Publish(ctx, b); err != nil {
		n.log.Error("invalidation publish failed", putguard.Fields{"kind": ev.Kind, "key": ev.Key, "err": err})
		return fmt.Errorf("%w: publish: %w", putguard.ErrInvalidationFailed, err)
	}
	return nil
}

func (n *Node) handle(b []byte) {
	var ev Event
	if err := msgpack.Unmarshal(b, &ev); err != nil {
		n.log.Warn("dropping undecodable invalidation event", putguard.Fields{"err": err})
		return
	}
	if ev.Node == n.id {
		return
	}
	switch ev.Kind {
	case KindKey:
		n.v.KeyRemoved(ev.Key)
	case KindRegion:
		n.v.RegionRemoved()
	default:
		n.log.Warn("dropping invalidation event of unknown kind", putguard.Fields{"kind": ev.Kind, "from": ev.Node})
	}
}
