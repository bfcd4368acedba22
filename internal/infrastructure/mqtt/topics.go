package mqtt

import (
	"fmt"
	"strings"
)

// Meshtastic MQTT topic layout.
//
// Firmware 2.x gateways publish to: msh/{region}/2/{format}/{channel}/{gateway}
// where format is "e" (encrypted protobuf), "c" (clear protobuf) or "json".
// Only the json subtree is decodable by this bridge. Some self-hosted
// brokers use the older flat layout meshtastic/json/{channel}/...; channel
// extraction handles both because it keys off the "json" segment, not a
// fixed index.
const (
	// TopicRoot is the default root of the Meshtastic topic hierarchy.
	TopicRoot = "msh"

	// jsonSegment marks the JSON-encoded subtree within the hierarchy.
	jsonSegment = "json"
)

// Topics provides builders for Meshtastic MQTT topic filters.
// Using these helpers keeps subscription patterns consistent.
type Topics struct{}

// JSONAll returns a filter matching all JSON-encoded packets in any region.
//
// Pattern: msh/+/2/json/#
func (Topics) JSONAll() string {
	return fmt.Sprintf("%s/+/2/%s/#", TopicRoot, jsonSegment)
}

// JSONRegion returns a filter matching all JSON-encoded packets for one region.
//
// Example: msh/EU_868/2/json/#
func (Topics) JSONRegion(region string) string {
	return fmt.Sprintf("%s/%s/2/%s/#", TopicRoot, region, jsonSegment)
}

// JSONChannel returns a filter matching one channel's JSON packets in any region.
//
// Example: msh/+/2/json/LongFast/#
func (Topics) JSONChannel(channel string) string {
	return fmt.Sprintf("%s/+/2/%s/%s/#", TopicRoot, jsonSegment, channel)
}

// JSONRegionChannel returns a filter matching one channel's JSON packets in
// one region.
//
// Example: msh/EU_868/2/json/LongFast/#
func (Topics) JSONRegionChannel(region, channel string) string {
	return fmt.Sprintf("%s/%s/2/%s/%s/#", TopicRoot, region, jsonSegment, channel)
}

// IsJSONTopic reports whether a concrete topic belongs to the JSON-encoded
// subtree. Encrypted and raw-protobuf topics return false and are skipped
// by the pipeline without a decode attempt.
func IsJSONTopic(topic string) bool {
	for _, segment := range strings.Split(topic, "/") {
		if segment == jsonSegment {
			return true
		}
	}
	return false
}

// ChannelFromTopic extracts the mesh channel name from a concrete topic.
//
// The channel is the segment following "json":
//
//	msh/EU_868/2/json/LongFast/!a1b2c3d4 -> "LongFast"
//	meshtastic/json/0/text               -> "0"
//
// Returns "" if the topic has no json segment or nothing follows it.
func ChannelFromTopic(topic string) string {
	segments := strings.Split(topic, "/")
	for i, segment := range segments {
		if segment == jsonSegment && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return ""
}

// ValidateTopicFilter checks that a subscription filter is well-formed per
// the MQTT specification.
//
// Rules enforced:
//   - filter must be non-empty
//   - "#" may appear only as the final segment, alone
//   - "+" must occupy a whole segment
//
// A malformed filter is a configuration error and is fatal at startup;
// retrying a subscription the broker will always reject is pointless.
//
// Returns:
//   - error: ErrInvalidTopic (wrapped) describing the problem, or nil
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}

	segments := strings.Split(filter, "/")
	for i, segment := range segments {
		if strings.Contains(segment, "#") {
			if segment != "#" {
				return fmt.Errorf("%w: '#' must occupy a whole segment in %q", ErrInvalidTopic, filter)
			}
			if i != len(segments)-1 {
				return fmt.Errorf("%w: '#' must be the final segment in %q", ErrInvalidTopic, filter)
			}
		}
		if strings.Contains(segment, "+") && segment != "+" {
			return fmt.Errorf("%w: '+' must occupy a whole segment in %q", ErrInvalidTopic, filter)
		}
	}

	return nil
}
