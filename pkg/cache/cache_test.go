package cache

import (
	"testing"
	"time"
)

func TestSetAndGet(t *testing.T) {
	c := New[string]()
	c.Set("key1", "value1", 1*time.Second)
	val, ok := c.Get("key1")
	if !ok || val != "value1" {
		t.Fatalf("expected value1, got %v, exists=%v", val, ok)
	}
}

func TestExpiration(t *testing.T) {
	c := New[string]()
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("key1", "value1", 100*time.Millisecond)

	c.now = func() time.Time { return now.Add(150 * time.Millisecond) }
	if _, ok := c.Get("key1"); ok {
		t.Fatalf("expected expired key to return false")
	}
}

func TestDelete(t *testing.T) {
	c := New[int]()
	c.Set("key1", 1, 1*time.Second)
	c.Delete("key1")
	if _, ok := c.Get("key1"); ok {
		t.Fatalf("expected deleted key to return false")
	}
}

func TestInvalidate(t *testing.T) {
	c := New[string]()
	c.Set("bakery_acme_1:pnl:a", "r1", 1*time.Second)
	c.Set("bakery_acme_1:pnl:b", "r2", 1*time.Second)
	c.Set("bakery_zed_2:pnl:a", "r3", 1*time.Second)
	c.Invalidate("bakery_acme_1:")
	_, ok1 := c.Get("bakery_acme_1:pnl:a")
	_, ok2 := c.Get("bakery_acme_1:pnl:b")
	_, ok3 := c.Get("bakery_zed_2:pnl:a")
	if ok1 || ok2 {
		t.Fatalf("expected acme keys to be invalidated")
	}
	if !ok3 {
		t.Fatalf("expected other namespace entry to survive")
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
}
