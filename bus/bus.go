// Package bus provides an event distribution system for toolflow
// execution. It allows components to publish and subscribe to engine
// events, enabling decoupled communication between the execution engine
// and observers such as loggers, UIs, and monitoring systems.
package bus

import "github.com/petal-labs/toolflow"

// EventBus distributes events to subscribers.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(event toolflow.Event)

	// Subscribe registers a subscriber for a specific execution context.
	// Returns a Subscription that must be closed when done.
	Subscribe(contextID string) Subscription

	// SubscribeAll registers a subscriber that receives events from all
	// contexts. Returns a Subscription that must be closed when done.
	SubscribeAll() Subscription

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// Subscription receives events.
type Subscription interface {
	// Events returns a channel of events for this subscription.
	Events() <-chan toolflow.Event

	// Close unsubscribes and releases resources.
	Close() error
}

// Handler returns an event handler that publishes into the bus, for
// wiring an Executor or PlanRunner directly to subscribers.
func Handler(b EventBus) toolflow.EventHandler {
	return func(e toolflow.Event) {
		b.Publish(e)
	}
}
