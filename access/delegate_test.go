package access

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ava-labs/avalanchego/utils/timer/mockable"
	"github.com/unkn0wn-root/putguard"
	c "github.com/unkn0wn-root/putguard/codec"
	"github.com/unkn0wn-root/putguard/internal/wire"
	pr "github.com/unkn0wn-root/putguard/provider"
)

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type memProvider struct {
	mu     sync.Mutex
	m      map[string]memEntry
	reject bool
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	p.m[key] = memEntry{v: value, exp: exp}
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Clear(_ context.Context) error {
	p.mu.Lock()
	p.m = make(map[string]memEntry)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok
}

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type healHooks struct {
	putguard.NopHooks
	mu      sync.Mutex
	reasons []string
	setRej  int
}

func (h *healHooks) SelfHealEntry(_, reason string) {
	h.mu.Lock()
	h.reasons = append(h.reasons, reason)
	h.mu.Unlock()
}

func (h *healHooks) ProviderSetRejected(string) {
	h.mu.Lock()
	h.setRej++
	h.mu.Unlock()
}

type fixture struct {
	d     *Delegate[user]
	mp    *memProvider
	clk   *mockable.Clock
	hooks *healHooks
}

func newFixture(t *testing.T, optsOpt func(*Options[user])) *fixture {
	t.Helper()
	clk := &mockable.Clock{}
	clk.Set(time.Unix(1_700_000_000, 0))
	hooks := &healHooks{}
	v, err := putguard.New[string](putguard.Options{Clock: clk, Hooks: hooks})
	if err != nil {
		t.Fatalf("putguard.New: %v", err)
	}
	mp := newMemProvider()
	opts := Options[user]{
		Namespace: "user",
		Provider:  mp,
		Codec:     c.JSON[user]{},
		Validator: v,
		Hooks:     hooks,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	d, err := New[user](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{d: d, mp: mp, clk: clk, hooks: hooks}
}

func (f *fixture) advance(d time.Duration) { f.clk.Set(f.clk.Time().Add(d)) }

func loader(calls *atomic.Int32, u user) Loader[user] {
	return func(context.Context) (user, error) {
		calls.Add(1)
		return u, nil
	}
}

func TestGetOrLoadCachesAcceptedPut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ada := user{ID: "1", Name: "Ada"}

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		got, err := f.d.GetOrLoad(ctx, "u:1", loader(&calls, ada))
		if err != nil || got != ada {
			t.Fatalf("GetOrLoad #%d: got=%v err=%v", i, got, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("loader called %d times, want 1", calls.Load())
	}
	if n := f.d.Validator().PendingPutCount(); n != 0 {
		t.Fatalf("pending puts left behind: %d", n)
	}
}

func TestRemoveThenNakedPutIsRejectedUntilWindowEnds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ada := user{ID: "1", Name: "Ada"}

	if err := f.d.Remove(ctx, "u:1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ok, err := f.d.PutFromLoad(ctx, "u:1", ada); err != nil || ok {
		t.Fatalf("naked put right after remove: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := f.d.Get(ctx, "u:1"); ok {
		t.Fatalf("rejected put must not populate the cache")
	}

	f.advance(putguard.DefaultNakedPutInvalidationPeriod + time.Millisecond)
	if ok, err := f.d.PutFromLoad(ctx, "u:1", ada); err != nil || !ok {
		t.Fatalf("naked put after the window: ok=%v err=%v", ok, err)
	}
	if got, ok, _ := f.d.Get(ctx, "u:1"); !ok || got != ada {
		t.Fatalf("Get after accepted put: ok=%v got=%v", ok, got)
	}
}

func TestRegisteredLoadSurvivesConcurrentRemove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ada := user{ID: "1", Name: "Ada"}

	load := func(ctx context.Context) (user, error) {
		// a writer removes the key while the load is in flight
		if err := f.d.Remove(ctx, "u:1"); err != nil {
			t.Errorf("Remove: %v", err)
		}
		return ada, nil
	}
	if _, err := f.d.GetOrLoad(ctx, "u:1", load); err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	if _, ok, _ := f.d.Get(ctx, "u:1"); !ok {
		t.Fatalf("registered put should be accepted despite the removal")
	}

	// unregistered puts get no such pass
	if ok, _ := f.d.PutFromLoad(ctx, "u:2", ada); !ok {
		t.Fatalf("untouched key should accept naked puts")
	}
	f.d.Remove(ctx, "u:2")
	if ok, _ := f.d.PutFromLoad(ctx, "u:2", ada); ok {
		t.Fatalf("naked put inside the window should be rejected")
	}
}

func TestGetOrLoadLoadErrorLeavesNoRegistration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	boom := errors.New("db down")

	_, err := f.d.GetOrLoad(ctx, "u:1", func(context.Context) (user, error) { return user{}, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want %v", err, boom)
	}
	if n := f.d.Validator().PendingPutCount(); n != 0 {
		t.Fatalf("PendingPutCount=%d want 0", n)
	}
	if _, ok, _ := f.d.Get(ctx, "u:1"); ok {
		t.Fatalf("nothing should be cached after a failed load")
	}
}

func TestPutFromLoadUsesContextOwner(t *testing.T) {
	ctx := putguard.WithOwner(context.Background(), "tx-1")
	f := newFixture(t, nil)
	v := f.d.Validator()

	// the owner registered earlier in its transaction; a removal followed
	v.RegisterPendingPut("tx-1", "u:1")
	f.d.Remove(ctx, "u:1")

	ok, err := f.d.PutFromLoad(ctx, "u:1", user{ID: "1"})
	if err != nil || !ok {
		t.Fatalf("PutFromLoad with registered owner: ok=%v err=%v", ok, err)
	}
}

func TestSelfHealOnCorrupt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	k := f.d.storageKey("bad")

	if ok, err := f.mp.Set(ctx, k, []byte("not-wire-format"), 1, time.Minute); err != nil || !ok {
		t.Fatalf("inject corrupt: ok=%v err=%v", ok, err)
	}
	if _, ok, err := f.d.Get(ctx, "bad"); err != nil || ok {
		t.Fatalf("Get on corrupt should miss, ok=%v err=%v", ok, err)
	}
	if f.mp.has(k) {
		t.Fatalf("corrupt entry was not deleted by self-heal")
	}

	// framed correctly, but the payload is not a user
	if _, err := f.mp.Set(ctx, k, wire.EncodeEntry(f.clk.Time().UnixNano(), []byte("{")), 1, time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := f.d.Get(ctx, "bad"); ok {
		t.Fatalf("Get on undecodable value should miss")
	}
	if f.mp.has(k) {
		t.Fatalf("undecodable entry was not deleted by self-heal")
	}

	f.hooks.mu.Lock()
	defer f.hooks.mu.Unlock()
	if len(f.hooks.reasons) != 2 || f.hooks.reasons[0] != "corrupt" || f.hooks.reasons[1] != "value_decode" {
		t.Fatalf("self-heal reasons=%v", f.hooks.reasons)
	}
}

func TestEntryLoadedBeforeRegionInvalidationIsStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	old := f.clk.Time().UnixNano()
	f.advance(time.Second)

	if err := f.d.RemoveAll(ctx); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}

	// e.g. written by a peer that had not yet seen the invalidation
	payload, _ := c.JSON[user]{}.Encode(user{ID: "1"})
	k := f.d.storageKey("u:1")
	f.mp.Set(ctx, k, wire.EncodeEntry(old, payload), 1, time.Minute)

	if _, ok, _ := f.d.Get(ctx, "u:1"); ok {
		t.Fatalf("entry loaded before the region invalidation must miss")
	}
	if f.mp.has(k) {
		t.Fatalf("stale entry was not deleted")
	}
	f.hooks.mu.Lock()
	reasons := append([]string(nil), f.hooks.reasons...)
	f.hooks.mu.Unlock()
	if len(reasons) != 1 || reasons[0] != "region_stale" {
		t.Fatalf("self-heal reasons = %v, want [region_stale]", reasons)
	}

	f.advance(putguard.DefaultNakedPutInvalidationPeriod + time.Millisecond)
	if ok, err := f.d.PutFromLoad(ctx, "u:1", user{ID: "1"}); err != nil || !ok {
		t.Fatalf("put after the window: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := f.d.Get(ctx, "u:1"); !ok {
		t.Fatalf("fresh entry should hit")
	}
}

func TestRemoveAllRejectsNakedPuts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ada := user{ID: "1", Name: "Ada"}

	if ok, _ := f.d.PutFromLoad(ctx, "u:1", ada); !ok {
		t.Fatalf("initial put should be accepted")
	}
	if err := f.d.RemoveAll(ctx); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if _, ok, _ := f.d.Get(ctx, "u:1"); ok {
		t.Fatalf("RemoveAll should clear the provider")
	}
	if ok, _ := f.d.PutFromLoad(ctx, "u:7", ada); ok {
		t.Fatalf("naked put inside the region window should be rejected")
	}
}

type stubInvalidator struct {
	keyErr    error
	regionErr error
	entered   chan struct{}
	release   chan struct{}
}

func (s *stubInvalidator) InvalidateKey(context.Context, string) error { return s.keyErr }
func (s *stubInvalidator) InvalidateRegion(context.Context) error {
	if s.entered != nil {
		close(s.entered)
		<-s.release
	}
	return s.regionErr
}

func TestRemoveAbortsWhenInvalidationFails(t *testing.T) {
	ctx := context.Background()
	inv := &stubInvalidator{keyErr: putguard.ErrInvalidationFailed, regionErr: putguard.ErrInvalidationFailed}
	f := newFixture(t, func(o *Options[user]) { o.Invalidator = inv })

	if ok, _ := f.d.PutFromLoad(ctx, "u:1", user{ID: "1"}); !ok {
		t.Fatalf("initial put should be accepted")
	}

	err := f.d.Remove(ctx, "u:1")
	var ie *InvalidationError
	if !errors.As(err, &ie) || ie.Key != "u:1" || ie.Region {
		t.Fatalf("Remove err=%v, want *InvalidationError for u:1", err)
	}
	if !errors.Is(err, putguard.ErrInvalidationFailed) {
		t.Fatalf("Remove err should unwrap to ErrInvalidationFailed: %v", err)
	}
	if !f.mp.has(f.d.storageKey("u:1")) {
		t.Fatalf("entry must stay when the invalidation failed")
	}

	err = f.d.RemoveAll(ctx)
	if !errors.As(err, &ie) || !ie.Region {
		t.Fatalf("RemoveAll err=%v, want region *InvalidationError", err)
	}
	if !f.mp.has(f.d.storageKey("u:1")) {
		t.Fatalf("provider must not be cleared when the invalidation failed")
	}
}

func TestReadsMissWhileRemoveAllRuns(t *testing.T) {
	ctx := context.Background()
	inv := &stubInvalidator{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, func(o *Options[user]) { o.Invalidator = inv })

	if ok, _ := f.d.PutFromLoad(ctx, "u:1", user{ID: "1"}); !ok {
		t.Fatalf("initial put should be accepted")
	}

	done := make(chan error, 1)
	go func() { done <- f.d.RemoveAll(ctx) }()
	<-inv.entered

	if _, ok, _ := f.d.Get(ctx, "u:1"); ok {
		t.Fatalf("Get should miss while RemoveAll is in progress")
	}
	close(inv.release)
	if err := <-done; err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
}

func TestProviderRejectionIsReported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.mp.reject = true

	ok, err := f.d.PutFromLoad(ctx, "u:1", user{ID: "1"})
	if err != nil || ok {
		t.Fatalf("PutFromLoad under pressure: ok=%v err=%v", ok, err)
	}
	if f.hooks.setRej != 1 {
		t.Fatalf("ProviderSetRejected calls=%d want 1", f.hooks.setRej)
	}
}

func TestDisabledIsPassThrough(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *Options[user]) { o.Disabled = true })

	var calls atomic.Int32
	for i := 0; i < 2; i++ {
		if _, err := f.d.GetOrLoad(ctx, "u:1", loader(&calls, user{ID: "1"})); err != nil {
			t.Fatalf("GetOrLoad: %v", err)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("disabled delegate should always load, calls=%d", calls.Load())
	}
	if f.mp.has(f.d.storageKey("u:1")) {
		t.Fatalf("disabled delegate wrote to the provider")
	}
}

func TestNewRequiresProviderCodecNamespace(t *testing.T) {
	mp := newMemProvider()
	cases := map[string]Options[user]{
		"provider":  {Namespace: "ns", Codec: c.JSON[user]{}},
		"codec":     {Namespace: "ns", Provider: mp},
		"namespace": {Provider: mp, Codec: c.JSON[user]{}},
	}
	for name, opts := range cases {
		if _, err := New[user](opts); err == nil {
			t.Fatalf("%s: New should fail", name)
		}
	}
	if _, err := New[user](Options[user]{Namespace: "ns", Provider: mp, Codec: c.JSON[user]{}}); err != nil {
		t.Fatalf("New with defaults: %v", err)
	}
}
