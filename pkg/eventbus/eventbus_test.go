package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type TestEvent struct {
	Message string
}

type AnotherEvent struct {
	Value int
}

func TestEventBus_Subscribe_And_Publish(t *testing.T) {
	bus := New()

	var received TestEvent
	var wg sync.WaitGroup
	wg.Add(1)

	bus.Subscribe(TestEvent{}, func(event interface{}) {
		if e, ok := event.(TestEvent); ok {
			received = e
			wg.Done()
		}
	})

	bus.Publish(TestEvent{Message: "hello"})

	// Wait for async handler
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		assert.Equal(t, "hello", received.Message)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventBus_PublishSync(t *testing.T) {
	bus := New()

	var received TestEvent

	bus.Subscribe(TestEvent{}, func(event interface{}) {
		if e, ok := event.(TestEvent); ok {
			received = e
		}
	})

	bus.PublishSync(TestEvent{Message: "sync"})

	assert.Equal(t, "sync", received.Message)
}

func TestEventBus_TypeIsolation(t *testing.T) {
	bus := New()

	var testCount, otherCount int

	bus.Subscribe(TestEvent{}, func(event interface{}) {
		testCount++
	})
	bus.Subscribe(AnotherEvent{}, func(event interface{}) {
		otherCount++
	})

	bus.PublishSync(AnotherEvent{Value: 1})
	bus.PublishSync(AnotherEvent{Value: 2})

	assert.Equal(t, 0, testCount)
	assert.Equal(t, 2, otherCount)
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	bus := New()

	var a, b bool
	bus.Subscribe(TestEvent{}, func(event interface{}) { a = true })
	bus.Subscribe(TestEvent{}, func(event interface{}) { b = true })

	assert.Equal(t, 2, bus.SubscriberCount(TestEvent{}))
	assert.True(t, bus.HasSubscribers(TestEvent{}))
	assert.False(t, bus.HasSubscribers(AnotherEvent{}))

	bus.PublishSync(TestEvent{Message: "x"})
	assert.True(t, a)
	assert.True(t, b)
}

func TestEventBus_PublishWithoutSubscribers(t *testing.T) {
	bus := New()

	// Should not panic
	bus.Publish(TestEvent{Message: "nobody home"})
	bus.PublishSync(AnotherEvent{Value: 3})
}
