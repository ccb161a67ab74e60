package bus

import (
	"errors"
	"testing"
	"time"
)

func TestBasicPublishSubscribe(t *testing.T) {
	b := New()
	done := make(chan struct{})
	_, err := b.Subscribe(TypeRollSettled, func(e Event) error {
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err = b.Publish(NewEvent(TypeRollSettled, "tester", 6)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("handler not called")
	}
}

func TestPublishAsyncReturnsErrorChannel(t *testing.T) {
	b := New()
	handlerErr := errors.New("fail")
	_, err := b.Subscribe("x", func(e Event) error { return handlerErr })
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	e := <-b.PublishAsync(NewEvent("x", "src", nil))
	if e == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := New()
	calls := 0
	sub, err := b.Subscribe("x", func(e Event) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if err = b.Publish(NewEvent("x", "src", nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err = b.Unsubscribe(sub); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err = b.Publish(NewEvent("x", "src", nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if sub.IsActive() {
		t.Fatal("subscription should be inactive after cancel")
	}
}

func TestPublishNoSubscribers(t *testing.T) {
	b := New()
	if err := b.Publish(NewEvent("nobody", "src", nil)); err != nil {
		t.Fatalf("publish to no subscribers should not error: %v", err)
	}
}
