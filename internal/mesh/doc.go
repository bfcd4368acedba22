// Package mesh decodes Meshtastic JSON packet events into normalized Events.
//
// Decode is deliberately a pure function: no clock reads, no caches, no
// side effects. The same payload decoded twice yields structurally equal
// events, which keeps the decoder trivially testable and the pipeline's
// exactly-once production invariant easy to reason about.
//
// The wire format is whatever the gateway firmware publishes on the json
// subtree, which varies across versions (snake_case vs camelCase, nested
// vs flat payloads). The decoder is permissive about shape and strict
// about the two things the pipeline needs: a packet type and a sender.
package mesh
