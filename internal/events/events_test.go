package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishFanOut(t *testing.T) {
	b := New()
	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	b.Publish(Event{Kind: KeystrokeCaptured, Data: 42})

	select {
	case e := <-ch1:
		assert.Equal(t, KeystrokeCaptured, e.Kind)
		assert.Equal(t, 42, e.Data)
	case <-time.After(time.Second):
		t.Fatal("subscriber 1 never received event")
	}
	select {
	case e := <-ch2:
		assert.Equal(t, KeystrokeCaptured, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("subscriber 2 never received event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestPublishDropsOnFullChannel(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < 100; i++ {
		b.Publish(Event{Kind: RelaySucceeded, Data: i})
	}

	// Should not block or panic; channel holds at most its buffer size.
	drained := 0
	for {
		select {
		case <-ch:
			drained++
		default:
			assert.LessOrEqual(t, drained, 64)
			return
		}
	}
}

func TestClearClosesAllSubscribers(t *testing.T) {
	b := New()
	ch1, _ := b.Subscribe()
	ch2, _ := b.Subscribe()

	b.Clear()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	assert.False(t, ok1)
	assert.False(t, ok2)
}
