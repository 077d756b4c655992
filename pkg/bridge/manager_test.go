package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionManager_SubscribeUnsubscribe(t *testing.T) {
	m := NewConnectionManager(time.Second)
	c := &Connection{ID: "conn-1", subscriptions: make(map[string]bool)}

	m.subscribe(c, "document:doc-1")
	m.channelMu.RLock()
	_, subscribed := m.channels["document:doc-1"]["conn-1"]
	m.channelMu.RUnlock()
	require.True(t, subscribed)

	m.unsubscribe(c, "document:doc-1")
	m.channelMu.RLock()
	_, stillPresent := m.channels["document:doc-1"]
	m.channelMu.RUnlock()
	assert.False(t, stillPresent)
}

func TestConnectionManager_BroadcastBuffersForReplay(t *testing.T) {
	m := NewConnectionManager(time.Second)
	channel := "document:doc-1"

	m.Broadcast(channel, Message{Type: MsgBlockStarted, BlockID: "b1", Timestamp: time.Now()})
	m.Broadcast(channel, Message{Type: MsgBlockFinished, BlockID: "b1", Timestamp: time.Now()})

	m.channelMu.RLock()
	buf := m.replay[channel]
	m.channelMu.RUnlock()

	require.Len(t, buf, 2)
}

func TestConnectionManager_ReplayBufferBounded(t *testing.T) {
	m := NewConnectionManager(time.Second)
	channel := "document:doc-1"

	for i := 0; i < replayLimit+50; i++ {
		m.Broadcast(channel, Message{Type: MsgBlockOutput, BlockID: "b1", Timestamp: time.Now()})
	}

	m.channelMu.RLock()
	buf := m.replay[channel]
	m.channelMu.RUnlock()

	assert.Len(t, buf, replayLimit)
}

func TestConnectionManager_ActiveConnections(t *testing.T) {
	m := NewConnectionManager(time.Second)
	assert.Equal(t, 0, m.ActiveConnections())

	c := &Connection{ID: "conn-1", subscriptions: make(map[string]bool)}
	m.registerConnection(c)
	assert.Equal(t, 1, m.ActiveConnections())

	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()
	assert.Equal(t, 0, m.ActiveConnections())
}
