package cachekit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	c "github.com/unkn0wn-root/cachekit/codec"
	"github.com/unkn0wn-root/cachekit/driver"
	"github.com/unkn0wn-root/cachekit/driver/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// recHooks records hook calls for assertions.
type recHooks struct {
	NopHooks
	mu          sync.Mutex
	tags        []string
	unsupported []string
	selfHeal    []string
	stale       []bool
	contended   []string
	gc          chan error
}

func (h *recHooks) TagsUnsupported(_, op string) {
	h.mu.Lock()
	h.tags = append(h.tags, op)
	h.mu.Unlock()
}

func (h *recHooks) OperationUnsupported(_, op string) {
	h.mu.Lock()
	h.unsupported = append(h.unsupported, op)
	h.mu.Unlock()
}

func (h *recHooks) SelfHeal(key, reason string) {
	h.mu.Lock()
	h.selfHeal = append(h.selfHeal, key+"/"+reason)
	h.mu.Unlock()
}

func (h *recHooks) SoftExpiryStale(_ string, owned bool) {
	h.mu.Lock()
	h.stale = append(h.stale, owned)
	h.mu.Unlock()
}

func (h *recHooks) LockContended(key string) {
	h.mu.Lock()
	h.contended = append(h.contended, key)
	h.mu.Unlock()
}

func (h *recHooks) GarbageCollected(_ string, err error) {
	if h.gc != nil {
		h.gc <- err
	}
}

// kvOnly hides every optional capability of the wrapped driver.
type kvOnly struct{ driver.Driver }

func (kvOnly) Capabilities() driver.Capabilities { return driver.CapKV }

// countingDriver counts writes that reach the backend.
type countingDriver struct {
	driver.Driver
	writes atomic.Int32
}

func (d *countingDriver) Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	d.writes.Add(1)
	return d.Driver.Set(ctx, key, value, tags, ttl)
}

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type failCodec struct{}

func (failCodec) Encode(user) ([]byte, error) { return nil, errors.New("boom") }
func (failCodec) Decode([]byte) (user, error) { return user{}, errors.New("boom") }

func newTestClient[V any](t *testing.T, d driver.Driver, cd c.Codec[V], opt func(*Options[V])) *Client[V] {
	t.Helper()
	opts := Options[V]{Driver: d, Codec: cd}
	if opt != nil {
		opt(&opts)
	}
	cc, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(context.Background()) })
	return cc
}

func newMemoryClient(t *testing.T, clk *fakeClock, opt func(*Options[user])) (*Client[user], *memory.Memory) {
	t.Helper()
	m := memory.New(memory.Config{Now: clk.Now})
	cc := newTestClient[user](t, m, c.JSON[user]{}, func(o *Options[user]) {
		o.Now = clk.Now
		if opt != nil {
			opt(o)
		}
	})
	return cc, m
}

// ==============================
// Construction
// ==============================

func TestNewRequiresDriverAndCodec(t *testing.T) {
	if _, err := New(Options[user]{Codec: c.JSON[user]{}}); err == nil {
		t.Fatalf("expected error without driver")
	}
	if _, err := New(Options[user]{Driver: memory.New(memory.Config{})}); err == nil {
		t.Fatalf("expected error without codec")
	}
}

func TestGCRunsOnConstruction(t *testing.T) {
	h := &recHooks{gc: make(chan error, 1)}
	newTestClient[user](t, memory.New(memory.Config{}), c.JSON[user]{}, func(o *Options[user]) {
		o.GCRequests = 1 // always
		o.Hooks = h
	})
	select {
	case err := <-h.gc:
		if err != nil {
			t.Fatalf("gc err: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("gc sweep did not run")
	}
}

// ==============================
// Scalar KV
// ==============================

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	cc, _ := newMemoryClient(t, newClock(), nil)

	if _, ok, err := cc.Get(ctx, "u:1"); err != nil || ok {
		t.Fatalf("Get miss expected, ok=%v err=%v", ok, err)
	}
	v := user{ID: "1", Name: "Ada"}
	if err := cc.Set(ctx, "u:1", v); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, ok, err := cc.Get(ctx, "u:1"); err != nil || !ok || got != v {
		t.Fatalf("Get after set: ok=%v err=%v got=%v", ok, err, got)
	}
	if ok, err := cc.Delete(ctx, "u:1"); err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := cc.Get(ctx, "u:1"); ok {
		t.Fatalf("Get after delete should miss")
	}
}

func TestZeroValueIsPresent(t *testing.T) {
	ctx := context.Background()
	cc := newTestClient[int](t, memory.New(memory.Config{}), c.JSON[int]{}, nil)
	if err := cc.Set(ctx, "n", 0); err != nil {
		t.Fatal(err)
	}
	if v, ok, err := cc.Get(ctx, "n"); err != nil || !ok || v != 0 {
		t.Fatalf("zero value must be a hit: v=%d ok=%v err=%v", v, ok, err)
	}
}

func TestAddScenario(t *testing.T) {
	ctx := context.Background()
	cc := newTestClient[int](t, memory.New(memory.Config{}), c.JSON[int]{}, nil)

	if ok, err := cc.Add(ctx, "x", 1, WithTTL(60*time.Second)); err != nil || !ok {
		t.Fatalf("first add: ok=%v err=%v", ok, err)
	}
	if ok, err := cc.Add(ctx, "x", 2, WithTTL(60*time.Second)); err != nil || ok {
		t.Fatalf("second add: ok=%v err=%v", ok, err)
	}
	if v, _, _ := cc.Get(ctx, "x"); v != 1 {
		t.Fatalf("get x = %d want 1", v)
	}
}

func TestConcurrentAddOneWinner(t *testing.T) {
	ctx := context.Background()
	cc := newTestClient[int](t, memory.New(memory.Config{}), c.JSON[int]{}, nil)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if ok, _ := cc.Add(ctx, "race", i); ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("wins=%d want 1", wins.Load())
	}
}

func TestDefaultLifetimeAndNoExpiry(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	cc, _ := newMemoryClient(t, clk, func(o *Options[user]) { o.Lifetime = time.Minute })

	_ = cc.Set(ctx, "default", user{ID: "d"})
	_ = cc.Set(ctx, "forever", user{ID: "f"}, WithTTL(NoExpiry))
	_ = cc.Set(ctx, "zero", user{ID: "z"}, WithTTL(0))
	clk.Advance(2 * time.Minute)

	if _, ok, _ := cc.Get(ctx, "default"); ok {
		t.Fatalf("omitted TTL should use the configured lifetime")
	}
	for _, k := range []string{"forever", "zero"} {
		if _, ok, _ := cc.Get(ctx, k); !ok {
			t.Fatalf("%s should not expire", k)
		}
	}
}

func TestKeyNormalization(t *testing.T) {
	ctx := context.Background()
	cc, m := newMemoryClient(t, newClock(), nil)

	_ = cc.Set(ctx, "a/b", user{ID: "1"})
	got, ok, err := cc.Get(ctx, `a\b`)
	if err != nil || !ok || got.ID != "1" {
		t.Fatalf(`a/b and a\b should address the same entry: ok=%v err=%v`, ok, err)
	}
	if _, ok, _ := m.Get(ctx, "a=b"); !ok {
		t.Fatalf("storage key should be normalized")
	}
}

func TestNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	m := memory.New(memory.Config{})
	a := newTestClient[user](t, m, c.JSON[user]{}, func(o *Options[user]) { o.Namespace = "a" })
	b := newTestClient[user](t, m, c.JSON[user]{}, func(o *Options[user]) { o.Namespace = "b" })

	_ = a.Set(ctx, "k", user{ID: "from-a"})
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Fatalf("namespaces must not collide")
	}
	if _, ok, _ := m.Get(ctx, "a:k"); !ok {
		t.Fatalf("expected storage key a:k")
	}
}

// ==============================
// Error policy
// ==============================

func TestEncodeErrorSkipsBackend(t *testing.T) {
	ctx := context.Background()
	d := &countingDriver{Driver: memory.New(memory.Config{})}
	cc := newTestClient[user](t, d, failCodec{}, nil)

	err := cc.Set(ctx, "k", user{})
	var encErr *EncodingError
	if !errors.As(err, &encErr) || encErr.Op != "encode" {
		t.Fatalf("err=%v want encode EncodingError", err)
	}
	if d.writes.Load() != 0 {
		t.Fatalf("backend was contacted on encode failure")
	}
}

func TestDecodeErrorIsEncodingError(t *testing.T) {
	ctx := context.Background()
	m := memory.New(memory.Config{})
	cc := newTestClient[user](t, m, c.JSON[user]{}, nil)
	_ = m.Set(ctx, "k", []byte("{not json"), nil, 0)

	_, ok, err := cc.Get(ctx, "k")
	var encErr *EncodingError
	if ok || !errors.As(err, &encErr) || encErr.Op != "decode" {
		t.Fatalf("ok=%v err=%v want decode EncodingError", ok, err)
	}
}

func TestUnsupportedOperations(t *testing.T) {
	ctx := context.Background()
	h := &recHooks{}
	cc := newTestClient[user](t, kvOnly{memory.New(memory.Config{})}, c.JSON[user]{}, func(o *Options[user]) { o.Hooks = h })

	_, err := cc.HMGet(ctx, "h", []string{"a"})
	var capErr *CapabilityError
	if !errors.As(err, &capErr) || capErr.Op != "hmget" {
		t.Fatalf("err=%v want CapabilityError", err)
	}
	if !errors.Is(err, driver.ErrUnsupported) {
		t.Fatalf("CapabilityError should match driver.ErrUnsupported")
	}
	if _, _, _, err := cc.GetWithToken(ctx, "k"); !errors.As(err, &capErr) {
		t.Fatalf("GetWithToken on kv-only: %v", err)
	}
	if ok, err := cc.SAdd(ctx, "s", "a"); ok != 0 || err == nil {
		t.Fatalf("SAdd on kv-only: n=%d err=%v", ok, err)
	}
	if _, err := cc.Begin().Set("a", user{}).Exec(ctx); !errors.As(err, &capErr) {
		t.Fatalf("Exec on kv-only: %v", err)
	}
	if len(h.unsupported) != 4 {
		t.Fatalf("unsupported hooks = %v", h.unsupported)
	}
}

// ==============================
// Tags
// ==============================

func TestDeleteTagOnCapableDriver(t *testing.T) {
	ctx := context.Background()
	cc, _ := newMemoryClient(t, newClock(), func(o *Options[user]) { o.Namespace = "app" })

	_ = cc.Set(ctx, "k", user{ID: "1"}, WithTags("t"))
	_ = cc.Set(ctx, "other", user{ID: "2"})

	found, err := cc.Find(ctx, "t")
	if err != nil || len(found) != 1 || found[0] != "k" {
		t.Fatalf("Find = %v err=%v", found, err)
	}
	if ok, err := cc.DeleteTag(ctx, "t"); err != nil || !ok {
		t.Fatalf("DeleteTag: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := cc.Get(ctx, "k"); ok {
		t.Fatalf("tagged key should be gone")
	}
	if _, ok, _ := cc.Get(ctx, "other"); !ok {
		t.Fatalf("untagged key should survive")
	}
}

func TestDeleteTagOnNonCapableDriver(t *testing.T) {
	ctx := context.Background()
	h := &recHooks{}
	cc := newTestClient[user](t, kvOnly{memory.New(memory.Config{})}, c.JSON[user]{}, func(o *Options[user]) { o.Hooks = h })

	v := user{ID: "1"}
	if err := cc.Set(ctx, "k", v, WithTags("t")); err != nil {
		t.Fatalf("tagged Set on non-tag driver should succeed: %v", err)
	}
	if ok, err := cc.DeleteTag(ctx, "t"); err != nil || ok {
		t.Fatalf("DeleteTag should be a no-op: ok=%v err=%v", ok, err)
	}
	if got, ok, _ := cc.Get(ctx, "k"); !ok || got != v {
		t.Fatalf("value should still be present")
	}
	if found, err := cc.Find(ctx, "t"); err != nil || len(found) != 0 {
		t.Fatalf("Find = %v err=%v", found, err)
	}
	if len(h.tags) != 3 {
		t.Fatalf("tags-unsupported hooks = %v", h.tags)
	}
}

// ==============================
// Multi
// ==============================

func TestGetMultiNativeAndFallback(t *testing.T) {
	ctx := context.Background()
	native, _ := newMemoryClient(t, newClock(), nil)
	fallback := newTestClient[user](t, kvOnly{memory.New(memory.Config{})}, c.JSON[user]{}, nil)

	for name, cc := range map[string]*Client[user]{"native": native, "fallback": fallback} {
		err := cc.SetMulti(ctx, map[string]user{"a/1": {ID: "a"}, "b": {ID: "b"}})
		if err != nil {
			t.Fatalf("%s SetMulti: %v", name, err)
		}
		got, err := cc.GetMulti(ctx, []string{"b", "missing", `a\1`})
		if err != nil {
			t.Fatalf("%s GetMulti: %v", name, err)
		}
		if len(got) != 2 || got["b"].ID != "b" || got[`a\1`].ID != "a" {
			t.Fatalf("%s GetMulti = %v", name, got)
		}
		if _, ok := got["missing"]; ok {
			t.Fatalf("%s: missing key must be omitted", name)
		}
	}
}

func TestSetMultiWithTagsGoesKeyByKey(t *testing.T) {
	ctx := context.Background()
	cc, _ := newMemoryClient(t, newClock(), nil)
	_ = cc.SetMulti(ctx, map[string]user{"a": {ID: "a"}, "b": {ID: "b"}}, WithTags("batch"))

	found, _ := cc.Find(ctx, "batch")
	sort.Strings(found)
	if len(found) != 2 || found[0] != "a" || found[1] != "b" {
		t.Fatalf("Find(batch) = %v", found)
	}
}

// ==============================
// CAS
// ==============================

func TestCASConflict(t *testing.T) {
	ctx := context.Background()
	cc, _ := newMemoryClient(t, newClock(), nil)
	_ = cc.Set(ctx, "k", user{Name: "v1"})

	_, tok, ok, err := cc.GetWithToken(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("GetWithToken: ok=%v err=%v", ok, err)
	}
	_ = cc.Set(ctx, "k", user{Name: "concurrent"})

	if swapped, err := cc.CAS(ctx, tok, "k", user{Name: "mine"}); err != nil || swapped {
		t.Fatalf("CAS after concurrent write: swapped=%v err=%v", swapped, err)
	}

	// retry loop converges
	for i := 0; i < 3; i++ {
		cur, tok, _, _ := cc.GetWithToken(ctx, "k")
		cur.Name += "+1"
		if swapped, _ := cc.CAS(ctx, tok, "k", cur); swapped {
			break
		}
	}
	if got, _, _ := cc.Get(ctx, "k"); got.Name != "concurrent+1" {
		t.Fatalf("got %q", got.Name)
	}
}

// ==============================
// Transactions
// ==============================

func TestTxExecAndDiscard(t *testing.T) {
	ctx := context.Background()
	cc, _ := newMemoryClient(t, newClock(), nil)

	res, err := cc.Begin().
		Set("a", user{ID: "a"}).
		Add("a", user{ID: "dup"}).
		Delete("nope").
		Exec(ctx)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(res) != 3 || !res[0].OK || res[1].OK || res[2].OK {
		t.Fatalf("results = %+v", res)
	}
	if got, _, _ := cc.Get(ctx, "a"); got.ID != "a" {
		t.Fatalf("got %v", got)
	}

	tx := cc.Begin().Set("b", user{ID: "b"})
	tx.Discard()
	if _, err := tx.Exec(ctx); !errors.Is(err, ErrTxDone) {
		t.Fatalf("Exec after Discard: %v", err)
	}
	if _, ok, _ := cc.Get(ctx, "b"); ok {
		t.Fatalf("discarded op was applied")
	}
}

func TestTxUnbatchableOpIsCapabilityError(t *testing.T) {
	ctx := context.Background()
	h := &recHooks{}
	cc, m := newMemoryClient(t, newClock(), func(o *Options[user]) { o.Hooks = h })

	_, err := cc.Begin().
		Set("a", user{ID: "a"}).
		HSet("h", "f", user{ID: "f"}).
		Exec(ctx)
	var capErr *CapabilityError
	if !errors.As(err, &capErr) || capErr.Op != "exec" {
		t.Fatalf("err=%v want CapabilityError for exec", err)
	}
	if !errors.Is(err, driver.ErrUnsupported) {
		t.Fatalf("err=%v should unwrap to ErrUnsupported", err)
	}
	if len(h.unsupported) != 1 || h.unsupported[0] != "exec" {
		t.Fatalf("unsupported hooks=%v", h.unsupported)
	}
	if m.Len() != 0 {
		t.Fatalf("rejected batch was applied")
	}
}

func TestTxEncodeErrorAppliesNothing(t *testing.T) {
	ctx := context.Background()
	d := &countingDriver{Driver: memory.New(memory.Config{})}
	cc := newTestClient[user](t, d, failCodec{}, nil)

	_, err := cc.Begin().Set("a", user{}).Exec(ctx)
	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("err=%v want EncodingError", err)
	}
}
