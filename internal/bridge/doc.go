// Package bridge wires the mesh packet pipeline together: broker
// subscription, decoding, duplicate suppression and dispatch to the
// webhook and metrics sinks.
//
// The Controller owns the broker connection state machine. The MQTT
// client's own auto-reconnect is deliberately disabled; the controller
// reconnects with exponential backoff and resubscribes explicitly, so
// there is exactly one place where connection policy lives.
//
// Inbound messages cross from the client's callback goroutine into the
// controller's single processing goroutine over a bounded channel with
// drop-oldest overflow. The broker is never blocked by a slow webhook.
package bridge
