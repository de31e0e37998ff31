package eventbus

import "testing"

func TestPublishSubscribe(t *testing.T) {
	b := New()
	got := 0
	unsub := b.Subscribe(OnStep, func(v any) {
		if n, ok := v.(int); ok {
			got += n
		}
	})
	b.Publish(OnStep, 1)
	b.Publish(OnStep, 2)
	if got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	unsub()
	b.Publish(OnStep, 10)
	if got != 3 {
		t.Fatalf("unsubscribe failed")
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	b := New()
	var stepCount, endCount int
	b.Subscribe(OnStep, func(any) { stepCount++ })
	b.Subscribe(OnEndFrame, func(any) { endCount++ })
	b.Publish(OnStep, nil)
	if stepCount != 1 || endCount != 0 {
		t.Fatalf("expected only OnStep subscriber to fire, got step=%d end=%d", stepCount, endCount)
	}
}
