package memorybus

import "testing"

func TestBus_FanOutToSubscribers(t *testing.T) {
	b := New()
	a, cancelA := b.Subscribe()
	defer cancelA()
	c, cancelC := b.Subscribe()
	defer cancelC()

	b.Publish("program.resolved", []byte(`{"path":"/emission/x-1"}`))

	got := <-a
	if got.Topic != "program.resolved" || string(got.Payload) != `{"path":"/emission/x-1"}` {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got := <-c; got.Topic != "program.resolved" {
		t.Fatalf("second subscriber got %+v", got)
	}
}

func TestBus_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		b.Publish("enclosure.resolved", nil)
	}
	if len(ch) != subscriberBuffer {
		t.Fatalf("buffered events: want %d, got %d", subscriberBuffer, len(ch))
	}
	if b.Dropped() != 5 {
		t.Fatalf("dropped: want 5, got %d", b.Dropped())
	}
}

func TestBus_CancelAndClose(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after cancel")
	}

	other, _ := b.Subscribe()
	b.Close()
	if _, ok := <-other; ok {
		t.Fatalf("expected closed channel after Close")
	}

	late, lateCancel := b.Subscribe()
	defer lateCancel()
	b.Publish("program.failed", nil)
	if _, ok := <-late; ok {
		t.Fatalf("subscribe after Close must return a closed channel")
	}
}
