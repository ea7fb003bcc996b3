package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("err=%v want ErrNilClient", err)
	}
}

func TestClearRequiresPrefix(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	p, err := New(Config{Client: rdb, CloseClient: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(context.Background())

	if err := p.Clear(context.Background()); !errors.Is(err, ErrNoPrefix) {
		t.Fatalf("Clear err=%v want ErrNoPrefix", err)
	}
}

// Runs against a real server: PUTGUARD_REDIS_ADDR=localhost:6379 go test ./provider/redis
func TestRedisGetSetDelClear(t *testing.T) {
	addr := os.Getenv("PUTGUARD_REDIS_ADDR")
	if addr == "" {
		t.Skip("PUTGUARD_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	prefix := "entry:" + t.Name() + ":"
	p, err := New(Config{Client: rdb, KeyPrefix: prefix, CloseClient: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(ctx)

	outside := "other:" + t.Name()
	if err := rdb.Set(ctx, outside, "keep", time.Minute).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	defer rdb.Del(ctx, outside)

	for _, k := range []string{"a", "b", "c"} {
		if ok, err := p.Set(ctx, prefix+k, []byte(k), 1, time.Minute); err != nil || !ok {
			t.Fatalf("Set(%s): ok=%v err=%v", k, ok, err)
		}
	}
	if b, ok, err := p.Get(ctx, prefix+"a"); err != nil || !ok || string(b) != "a" {
		t.Fatalf("Get(a)=%q ok=%v err=%v", b, ok, err)
	}
	if err := p.Del(ctx, prefix+"a"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := p.Get(ctx, prefix+"a"); ok {
		t.Fatalf("a should be gone")
	}

	if err := p.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for _, k := range []string{"b", "c"} {
		if _, ok, _ := p.Get(ctx, prefix+k); ok {
			t.Fatalf("%s should be gone after Clear", k)
		}
	}
	if v, err := rdb.Get(ctx, outside).Result(); err != nil || v != "keep" {
		t.Fatalf("Clear touched a key outside its prefix: %q %v", v, err)
	}
}
