package mesh

import "errors"

// Decode errors. All of them mean "drop this message"; none are retryable,
// because re-decoding the same bytes cannot succeed where the first attempt
// failed. Use errors.Is() to pick the log severity.
var (
	// ErrMalformed is returned for payloads that are not well-formed JSON.
	// Logged as a warning; encrypted topics are filtered before decode, so
	// malformed JSON on the json subtree is worth noticing.
	ErrMalformed = errors.New("mesh: malformed payload")

	// ErrUnknownKind is returned for structurally valid payloads without a
	// type discriminator. Dropped silently; the feed carries packet types
	// this bridge does not know about, and that is not an operational error.
	ErrUnknownKind = errors.New("mesh: missing packet type")

	// ErrMissingSender is returned when a payload has neither a numeric
	// "from" field nor a "sender" string. Without a sender the event cannot
	// be attributed, so it is dropped silently like an unknown kind.
	ErrMissingSender = errors.New("mesh: missing sender")
)
