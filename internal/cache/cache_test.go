package cache

import "testing"

func TestCache_RoundTrip(t *testing.T) {
	t.Parallel()

	c := New()
	k := Key{ChatID: 10, MessageID: 7}

	if _, ok := c.Get(k); ok {
		t.Fatalf("Get() on empty cache reported a hit")
	}

	c.Put(k, "summary")
	if got, ok := c.Get(k); !ok || got != "summary" {
		t.Errorf("Get() = %q, %v; want summary, true", got, ok)
	}

	c.Put(k, "updated")
	if got, _ := c.Get(k); got != "updated" {
		t.Errorf("Get() after overwrite = %q, want updated", got)
	}
}

func TestCache_KeysAreScopedByChat(t *testing.T) {
	t.Parallel()

	c := New()
	c.Put(Key{ChatID: 1, MessageID: 5}, "first chat")
	c.Put(Key{ChatID: 2, MessageID: 5}, "second chat")

	if got, _ := c.Get(Key{ChatID: 1, MessageID: 5}); got != "first chat" {
		t.Errorf("chat 1 = %q", got)
	}
	if got, _ := c.Get(Key{ChatID: 2, MessageID: 5}); got != "second chat" {
		t.Errorf("chat 2 = %q", got)
	}
}

func TestCache_RemoveAndClear(t *testing.T) {
	t.Parallel()

	c := New()
	a := Key{ChatID: 1, MessageID: 1}
	b := Key{ChatID: 1, MessageID: 2}
	c.Put(a, "a")
	c.Put(b, "b")

	c.Remove(a)
	if _, ok := c.Get(a); ok {
		t.Errorf("Get(a) hit after Remove")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	c.Put(a, "a")
	c.Clear()
	for _, k := range []Key{a, b} {
		if _, ok := c.Get(k); ok {
			t.Errorf("Get(%+v) hit after Clear", k)
		}
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", c.Len())
	}
}

func TestCache_ZeroMessageIDIsNotStored(t *testing.T) {
	t.Parallel()

	c := New()
	c.Put(Key{ChatID: 3}, "nope")
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}
