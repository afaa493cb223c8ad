package store

import "testing"

func TestHubPublishAndCancel(t *testing.T) {
	h := NewHub[int]()

	ch, cancel := h.Subscribe("k")
	h.Publish("k", 1)
	if got := <-ch; got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}

	// Latest wins when the subscriber lags.
	h.Publish("k", 2)
	h.Publish("k", 3)
	if got := <-ch; got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
	cancel() // repeated cancel must not panic

	// Publishing to a key with no subscribers is a no-op.
	h.Publish("k", 4)
}

func TestHubIsolatesKeys(t *testing.T) {
	h := NewHub[string]()
	a, cancelA := h.Subscribe("a")
	defer cancelA()
	b, cancelB := h.Subscribe("b")
	defer cancelB()

	h.Publish("a", "only-a")
	select {
	case v := <-b:
		t.Fatalf("subscriber b received %q for key a", v)
	default:
	}
	if got := <-a; got != "only-a" {
		t.Fatalf("expected only-a, got %q", got)
	}
}
