package bus

import "time"

// Event type strings published by the simulation.
const (
	TypeRollSettled = "roll.settled"
	TypeShake       = "motion.shake"
)

// EventBus is a thread-safe in-process pub/sub bus. Handlers subscribe by
// Event.Type() string; Publish delivers synchronously in the caller
// goroutine and joins handler errors. Handlers should be quick or offload
// heavy work to avoid blocking the simulation tick.
type EventBus interface {
	// Publish delivers the event synchronously to all active subscribers
	// of event.Type(). Handler errors are joined and returned.
	Publish(event Event) error
	// PublishAsync publishes in a separate goroutine and returns a channel
	// that receives the joined error (or nil) before closing.
	PublishAsync(event Event) <-chan error
	// Subscribe registers a handler for an event type and returns a
	// cancellable Subscription.
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels the given Subscription. Nil is a no-op.
	Unsubscribe(Subscription) error
}

// Event is an immutable message transported by the bus. Type is the routing
// key; Source identifies the publisher; Data is an opaque payload.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
}

// EventHandler is invoked once per delivered event.
type EventHandler func(event Event) error

// Subscription is a registered handler bound to an event type.
type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}
