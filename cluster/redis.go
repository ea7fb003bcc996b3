package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Redis is a Bus over Redis Pub/Sub. Delivery is at-most-once: a node that is
// disconnected when an event is published never sees it, so keep the
// naked-put invalidation period above the expected reconnect time.
type Redis struct {
	rdb     redis.UniversalClient
	channel string
}

var _ Bus = (*Redis)(nil)

// NewRedis creates a bus on channel "putguard:<namespace>". namespace should
// match the access delegate's Namespace.
func NewRedis(client redis.UniversalClient, namespace string) *Redis {
	return &Redis{rdb: client, channel: "putguard:" + namespace}
}

func (b *Redis) Publish(ctx context.Context, msg []byte) error {
	return b.rdb.Publish(ctx, b.channel, msg).Err()
}

// Subscribe returns once the subscription is confirmed by the server.
func (b *Redis) Subscribe(ctx context.Context, fn func([]byte)) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("cluster: subscribe %s: %w", b.channel, err)
	}

	s := &redisSub{ps: ps}
	ch := ps.Channel()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for m := range ch {
			fn([]byte(m.Payload))
		}
	}()
	return s, nil
}

type redisSub struct {
	ps   *redis.PubSub
	wg   sync.WaitGroup
	once sync.Once
	err  error
}

// Close unsubscribes and waits for the delivery goroutine to exit.
func (s *redisSub) Close() error {
	s.once.Do(func() {
		s.err = s.ps.Close()
		s.wg.Wait()
	})
	return s.err
}
