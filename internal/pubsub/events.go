package pubsub

type (
	// EventType identifies the type of event
	EventType string

	// Event is one published payload and its type.
	Event[T any] struct {
		Type    EventType
		Payload T
	}
)
