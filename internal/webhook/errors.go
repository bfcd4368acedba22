package webhook

import "errors"

// Sentinel errors for webhook delivery.
// Use errors.Is() to check for these errors.
var (
	// ErrNoURL indicates a deliverer was constructed without an endpoint.
	ErrNoURL = errors.New("webhook URL not configured")
)
