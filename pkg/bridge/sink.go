package bridge

// Sink composes a ConnectionManager and an EventBus into the single
// collaborator a document.Actor needs. Kept as its own tiny type rather
// than having ConnectionManager grow a PublishEvent method: the two
// concerns are separate buses that only need to travel together at the
// composition root.
type Sink struct {
	Connections *ConnectionManager
	Events      *EventBus
}

// NewSink wires a ConnectionManager and EventBus into one OutputSink.
func NewSink(connections *ConnectionManager, events *EventBus) *Sink {
	return &Sink{Connections: connections, Events: events}
}

// Broadcast forwards to the ConnectionManager's WebSocket fan-out.
func (s *Sink) Broadcast(channel string, msg Message) {
	s.Connections.Broadcast(channel, msg)
}

// PublishEvent forwards to the GCEvent bus.
func (s *Sink) PublishEvent(evt GCEvent) {
	s.Events.Publish(evt)
}
