// Package node tracks display names for mesh nodes.
//
// Nodes identify themselves on the wire by a 32-bit id (hex form like
// "!9e9d5748") and periodically broadcast nodeinfo packets carrying their
// human-chosen short and long names. The bridge caches those names and
// uses them when formatting relayed messages, falling back to the hex id
// for nodes it has not heard a nodeinfo from yet.
//
// The cache is write-through to SQLite: names are configuration-like
// state (unlike messages, which are deliberately not persisted), and
// keeping them across restarts avoids a window of hex-id-only messages
// after every redeploy.
package node
