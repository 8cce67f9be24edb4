package localcache

import (
	"strconv"
	"sync"
	"testing"
)

func TestGetSetDeleteFlush(t *testing.T) {
	c := New[int]("req")
	if c.Namespace() != "req" {
		t.Fatalf("Namespace = %q", c.Namespace())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatalf("unexpected hit")
	}
	c.Set("a", 0)
	if v, ok := c.Get("a"); !ok || v != 0 {
		t.Fatalf("zero value must be a hit: v=%d ok=%v", v, ok)
	}
	c.Set("b", 2)
	if !c.Delete("a") || c.Delete("a") {
		t.Fatalf("Delete should report presence once")
	}
	c.Flush()
	if c.Len() != 0 {
		t.Fatalf("Len after Flush = %d", c.Len())
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New[string]("x"), New[string]("x")
	a.Set("k", "v")
	if _, ok := b.Get("k"); ok {
		t.Fatalf("instances share state")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int]("n")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				k := strconv.Itoa(j)
				c.Set(k, i)
				c.Get(k)
			}
		}(i)
	}
	wg.Wait()
	if c.Len() != 100 {
		t.Fatalf("Len = %d want 100", c.Len())
	}
}
