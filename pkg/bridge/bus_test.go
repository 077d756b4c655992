package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := NewResourceBus()
	ch := b.Subscribe()

	b.Publish(ResourceEvent{Kind: "ssh_session", Key: "host:22", Reason: "keepalive timeout"})

	select {
	case evt := <-ch:
		assert.Equal(t, "ssh_session", evt.Kind)
		assert.Equal(t, "host:22", evt.Key)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	b := NewResourceBus()
	a := b.Subscribe()
	c := b.Subscribe()

	b.Publish(ResourceEvent{Kind: "pty", Key: "block-1"})

	for _, ch := range []<-chan ResourceEvent{a, c} {
		select {
		case evt := <-ch:
			require.Equal(t, "pty", evt.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestBus_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewResourceBus()
	_ = b.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(ResourceEvent{Kind: "ssh_session", Key: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
