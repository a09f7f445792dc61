package gate_test

import (
	"testing"
	"time"

	"github.com/5vraa/swims.cc-website-sub000/gate"
)

func TestTTLCache_GetSet(t *testing.T) {
	c := gate.NewTTLCache[string, bool](5 * time.Minute)

	if _, ok := c.Get("123:role"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set("123:role", true)

	v, ok := c.Get("123:role")
	if !ok || !v {
		t.Errorf("expected cached true, got %v (hit=%v)", v, ok)
	}
}

func TestTTLCache_Invalidate(t *testing.T) {
	c := gate.NewTTLCache[string, bool](5 * time.Minute)
	c.Set("a", true)
	c.Set("b", false)

	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after Invalidate")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("Invalidate should leave other keys alone")
	}
}

func TestTTLCache_InvalidateAll(t *testing.T) {
	c := gate.NewTTLCache[string, bool](5 * time.Minute)
	c.Set("a", true)
	c.Set("b", true)

	c.InvalidateAll()
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestTTLCache_TTLExpiry(t *testing.T) {
	// Very short TTL
	c := gate.NewTTLCache[string, bool](10 * time.Millisecond)
	c.Set("a", true)

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after TTL expiry")
	}
}
