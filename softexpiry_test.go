package cachekit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	c "github.com/unkn0wn-root/cachekit/codec"
	"github.com/unkn0wn-root/cachekit/driver"
	"github.com/unkn0wn-root/cachekit/driver/memory"
	"github.com/unkn0wn-root/cachekit/internal/keys"
)

func newSoftClient(t *testing.T, clk *fakeClock, h Hooks) (*Client[string], *memory.Memory) {
	t.Helper()
	m := memory.New(memory.Config{Now: clk.Now})
	cc := newTestClient[string](t, m, c.JSON[string]{}, func(o *Options[string]) {
		o.Now = clk.Now
		o.Hooks = h
	})
	return cc, m
}

func TestSoftExpiryScenario(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	cc, _ := newSoftClient(t, clk, nil)

	if err := cc.SetWithSoftExpiry(ctx, "y", "v1", time.Second, 10*time.Second); err != nil {
		t.Fatalf("SetWithSoftExpiry: %v", err)
	}
	res, ok, err := cc.GetWithSoftExpiry(ctx, "y")
	if err != nil || !ok || res.State != Fresh || res.Value != "v1" {
		t.Fatalf("fresh read: %+v ok=%v err=%v", res, ok, err)
	}

	clk.Advance(2 * time.Second)

	first, ok, err := cc.GetWithSoftExpiry(ctx, "y")
	if err != nil || !ok || first.State != StaleOwned || first.Value != "v1" {
		t.Fatalf("first stale read: %+v ok=%v err=%v", first, ok, err)
	}
	second, ok, err := cc.GetWithSoftExpiry(ctx, "y")
	if err != nil || !ok || second.State != StaleWaiting || second.Value != "v1" {
		t.Fatalf("second stale read: %+v ok=%v err=%v", second, ok, err)
	}
}

func TestSoftExpiryPastGraceIsMiss(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	cc, _ := newSoftClient(t, clk, nil)

	_ = cc.SetWithSoftExpiry(ctx, "y", "v1", time.Second, 10*time.Second)
	clk.Advance(12 * time.Second)
	if _, ok, _ := cc.GetWithSoftExpiry(ctx, "y"); ok {
		t.Fatalf("entry should be physically gone after ttl+grace")
	}
}

func TestSoftExpiryExactlyOneOwner(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	h := &recHooks{}
	cc, _ := newSoftClient(t, clk, h)

	_ = cc.SetWithSoftExpiry(ctx, "hot", "v", time.Second, 0)
	clk.Advance(time.Second)

	const n = 32
	states := make([]SoftState, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, ok, err := cc.GetWithSoftExpiry(ctx, "hot")
			if err != nil || !ok {
				t.Errorf("read %d: ok=%v err=%v", i, ok, err)
				return
			}
			states[i] = res.State
		}(i)
	}
	wg.Wait()

	owned := 0
	for _, s := range states {
		switch s {
		case StaleOwned:
			owned++
		case StaleWaiting:
		default:
			t.Fatalf("unexpected state %s", s)
		}
	}
	if owned != 1 {
		t.Fatalf("owners=%d want 1", owned)
	}
	if len(h.stale) != n {
		t.Fatalf("stale hooks=%d want %d", len(h.stale), n)
	}
}

func TestSoftExpirySetReleasesRefreshLock(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	cc, m := newSoftClient(t, clk, nil)

	_ = cc.SetWithSoftExpiry(ctx, "y", "v1", time.Second, 0)
	clk.Advance(time.Second)
	if res, _, _ := cc.GetWithSoftExpiry(ctx, "y"); res.State != StaleOwned {
		t.Fatalf("want StaleOwned, got %s", res.State)
	}
	if _, ok, _ := m.Get(ctx, keys.Lock("y")); !ok {
		t.Fatalf("refresh lock should be held")
	}

	_ = cc.SetWithSoftExpiry(ctx, "y", "v2", time.Minute, 0)
	if _, ok, _ := m.Get(ctx, keys.Lock("y")); ok {
		t.Fatalf("refresh lock should be released by the write")
	}
	res, _, _ := cc.GetWithSoftExpiry(ctx, "y")
	if res.State != Fresh || res.Value != "v2" {
		t.Fatalf("after refresh: %+v", res)
	}
}

// rejectingLocks refuses every Add, like an admission-controlled cache.
type rejectingLocks struct{ driver.Driver }

func (rejectingLocks) Add(context.Context, string, []byte, []string, time.Duration) (bool, error) {
	return false, driver.ErrRejected
}

func TestRejectedLockReadsAsNotAcquired(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	h := &recHooks{}
	m := memory.New(memory.Config{Now: clk.Now})
	cc := newTestClient[string](t, rejectingLocks{m}, c.JSON[string]{}, func(o *Options[string]) {
		o.Now = clk.Now
		o.Hooks = h
	})

	_ = cc.SetWithSoftExpiry(ctx, "y", "v1", time.Second, time.Minute)
	clk.Advance(2 * time.Second)
	res, ok, err := cc.GetWithSoftExpiry(ctx, "y")
	if err != nil || !ok || res.State != StaleWaiting || res.Value != "v1" {
		t.Fatalf("stale read with rejected lock: %+v ok=%v err=%v", res, ok, err)
	}

	if ok, err := cc.Lock(ctx, "job", time.Second); ok || err != nil {
		t.Fatalf("Lock: ok=%v err=%v want false, nil", ok, err)
	}
	if _, err := cc.Acquire(ctx, "job", time.Second); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("Acquire err=%v want ErrLockHeld", err)
	}
	if len(h.contended) != 1 {
		t.Fatalf("contended hooks=%v", h.contended)
	}
}

func TestSoftExpiryRejectsNonPositiveTTL(t *testing.T) {
	cc, _ := newSoftClient(t, newClock(), nil)
	for _, ttl := range []time.Duration{0, -time.Second} {
		if err := cc.SetWithSoftExpiry(context.Background(), "y", "v", ttl, 0); !errors.Is(err, ErrInvalidTTL) {
			t.Fatalf("ttl=%s err=%v", ttl, err)
		}
	}
}

func TestSoftExpirySelfHealsCorruptFrame(t *testing.T) {
	ctx := context.Background()
	h := &recHooks{}
	cc, m := newSoftClient(t, newClock(), h)

	_ = m.Set(ctx, "y", []byte("plain bytes"), nil, 0)
	if _, ok, err := cc.GetWithSoftExpiry(ctx, "y"); ok || err != nil {
		t.Fatalf("corrupt frame should read as miss: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := m.Get(ctx, "y"); ok {
		t.Fatalf("corrupt frame should be deleted")
	}
	if len(h.selfHeal) != 1 || h.selfHeal[0] != "y/corrupt" {
		t.Fatalf("self-heal hooks = %v", h.selfHeal)
	}
}

func TestRememberSoft(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	cc, _ := newSoftClient(t, clk, nil)

	calls := 0
	load := func(v string, err error) func(context.Context) (string, error) {
		return func(context.Context) (string, error) {
			calls++
			return v, err
		}
	}

	v, err := cc.RememberSoft(ctx, "k", time.Second, load("v1", nil))
	if err != nil || v != "v1" || calls != 1 {
		t.Fatalf("miss: v=%q err=%v calls=%d", v, err, calls)
	}
	v, _ = cc.RememberSoft(ctx, "k", time.Second, load("unused", nil))
	if v != "v1" || calls != 1 {
		t.Fatalf("fresh hit should not load: v=%q calls=%d", v, calls)
	}

	clk.Advance(2 * time.Second)

	// refresh owner fails: stale value served and lock released
	v, err = cc.RememberSoft(ctx, "k", time.Second, load("", errors.New("origin down")))
	if err != nil || v != "v1" || calls != 2 {
		t.Fatalf("failed refresh: v=%q err=%v calls=%d", v, err, calls)
	}

	// next reader owns the refresh again since the lock was released
	v, err = cc.RememberSoft(ctx, "k", time.Second, load("v2", nil))
	if err != nil || v != "v2" || calls != 3 {
		t.Fatalf("refresh: v=%q err=%v calls=%d", v, err, calls)
	}
	if res, _, _ := cc.GetWithSoftExpiry(ctx, "k"); res.State != Fresh || res.Value != "v2" {
		t.Fatalf("after refresh: %+v", res)
	}
}

func TestRemember(t *testing.T) {
	ctx := context.Background()
	cc, _ := newSoftClient(t, newClock(), nil)

	var mu sync.Mutex
	calls := 0
	fn := func(context.Context) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return "computed", nil
	}
	for i := 0; i < 3; i++ {
		v, err := cc.Remember(ctx, "r", fn)
		if err != nil || v != "computed" {
			t.Fatalf("Remember: v=%q err=%v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := cc.Remember(ctx, "other", func(context.Context) (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
	if _, ok, _ := cc.Get(ctx, "other"); ok {
		t.Fatalf("failed load must not be stored")
	}
}
