// Package webhook delivers formatted messages to Discord webhook
// endpoints.
//
// The package has two halves. The payload builders (TextMessage,
// TelemetryMessage) turn decoded mesh events into Discord request bodies.
// The Deliverer owns everything about getting those bodies onto the wire:
// a bounded queue with drop-oldest overflow, a global rate limiter that
// spaces requests at least MinInterval apart, and bounded-attempt retry
// with exponential backoff that honors server-requested 429 delays.
//
// Delivery is at-least-once. A task that fails transiently re-enters the
// queue after its backoff delay, so completion order is not arrival order.
package webhook
