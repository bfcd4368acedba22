// Package mqtt provides the broker client for the bridging pipeline.
//
// This package manages:
//   - Single connection attempts to the Meshtastic MQTT broker
//   - Topic subscriptions with wildcard support
//   - Meshtastic topic filter builders and channel extraction
//   - Connection-lost notification for the bridge controller
//
// # Architecture
//
// The client deliberately does NOT auto-reconnect. The bridge controller
// owns the connection state machine (Disconnected, Connecting, Subscribed,
// ReconnectWait) and drives Connect/Subscribe/Close explicitly, applying
// its own bounded exponential backoff between attempts:
//
//	Mesh gateways -> MQTT broker -> meshbridge -> Discord webhook
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT)
//	client.SetOnConnectionLost(func(err error) { lost <- err })
//
//	if err := client.Connect(); err != nil {
//	    // schedule a retry
//	}
//	err := client.Subscribe(mqtt.Topics{}.JSONAll(), 0,
//	    func(topic string, payload []byte) error {
//	        // push onto the inbound channel, do not block
//	        return nil
//	    })
//
// # Security Considerations
//
//   - Public mesh brokers use well-known shared credentials; treat the
//     feed as untrusted input (the decoder validates every payload)
//   - TLS is recommended for brokers reachable over the public internet
package mqtt
