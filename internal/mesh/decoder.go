package mesh

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/radiomesh/meshbridge/internal/infrastructure/mqtt"
)

// envelope is the wire form of a Meshtastic JSON packet event.
// Fields beyond these exist on the wire but are not needed here.
type envelope struct {
	Type      string          `json:"type"`
	ID        int64           `json:"id"`
	Timestamp int64           `json:"timestamp"`
	From      json.RawMessage `json:"from"`
	Sender    string          `json:"sender"`
	RSSI      *int            `json:"rssi"`
	SNR       *float64        `json:"snr"`
	Payload   json.RawMessage `json:"payload"`
	Text      string          `json:"text"`
}

// degreesFactor converts the wire's integer 1e-7 lat/lon to degrees.
const degreesFactor = 1e7

// Decode parses a raw subscribed payload into a normalized Event.
//
// Decode is a pure function of its inputs: receivedAt is passed in rather
// than read from the clock so that decoding the same payload twice yields
// structurally equal events.
//
// Parameters:
//   - payload: raw JSON bytes from the broker
//   - topic: concrete topic the message arrived on (for channel extraction)
//   - receivedAt: receipt time, used when the payload carries no timestamp
//
// Returns:
//   - *Event: the decoded event
//   - error: ErrMalformed, ErrUnknownKind or ErrMissingSender; all mean
//     the message is dropped, none are retryable
func Decode(payload []byte, topic string, receivedAt time.Time) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if env.Type == "" {
		return nil, ErrUnknownKind
	}

	ev := &Event{
		Kind:      Kind(env.Type),
		Channel:   mqtt.ChannelFromTopic(topic),
		PacketID:  env.ID,
		Timestamp: receivedAt,
		RSSI:      env.RSSI,
		SNR:       env.SNR,
	}

	// The "from" field identifies the original node even when the packet
	// was re-published by a gateway; "sender" is a rare fallback.
	ev.SenderID = senderID(env)
	if ev.SenderID == "" {
		return nil, ErrMissingSender
	}

	if env.Timestamp > 0 {
		ev.Timestamp = time.Unix(env.Timestamp, 0).UTC()
	}

	switch ev.Kind {
	case KindText:
		ev.Text = decodeText(env)
	case KindPosition:
		ev.Position = decodePosition(env.Payload)
	case KindTelemetry:
		ev.Metrics = decodeMetrics(env.Payload)
	case KindNodeInfo:
		ev.NodeInfo = decodeNodeInfo(env.Payload)
	}

	return ev, nil
}

// senderID resolves the originating node id. "from" is numeric on the
// wire (formatted to the canonical !%08x hex form) but some gateways emit
// it pre-formatted as a string, which is accepted verbatim; the envelope's
// "sender" string is the fallback when "from" is absent or unusable.
func senderID(env envelope) string {
	if len(env.From) > 0 {
		var num int64
		if err := json.Unmarshal(env.From, &num); err == nil {
			return fmt.Sprintf("!%08x", uint32(num)) // #nosec G115 -- node ids are 32-bit on the wire
		}
		var str string
		if err := json.Unmarshal(env.From, &str); err == nil && str != "" {
			return str
		}
	}
	return env.Sender
}

// decodeText extracts the message body from a text packet.
// Firmware publishes {"payload":{"text":...}}; older gateways put the
// text at the top level. An empty result is a valid (filterable) event.
func decodeText(env envelope) string {
	if len(env.Payload) > 0 {
		var body struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(env.Payload, &body); err == nil && body.Text != "" {
			return body.Text
		}
	}
	return env.Text
}

// decodePosition extracts a location fix from a position packet.
// Returns nil when the payload has no usable fix (missing or 0,0
// coordinates, which the firmware reports for nodes without GPS lock).
//
// The wire format wobbles between snake_case and camelCase across firmware
// versions, and sometimes nests the fix under a "position" key, so fields
// are looked up by candidate names rather than struct tags.
func decodePosition(payload json.RawMessage) *Position {
	m := payloadMap(payload)
	if m == nil {
		return nil
	}
	if nested, ok := m["position"].(map[string]interface{}); ok {
		m = nested
	}

	latI, latOK := numField(m, "latitude_i", "latitudeI")
	lonI, lonOK := numField(m, "longitude_i", "longitudeI")
	if !latOK || !lonOK || (latI == 0 && lonI == 0) {
		return nil
	}

	pos := &Position{
		Latitude:  latI / degreesFactor,
		Longitude: lonI / degreesFactor,
	}

	if alt, ok := numField(m, "altitude"); ok {
		v := int(alt)
		pos.Altitude = &v
	}
	if sats, ok := numField(m, "sats_in_view", "satsInView"); ok {
		v := int(sats)
		pos.Satellites = &v
	}

	return pos
}

// decodeMetrics extracts device metrics from a telemetry packet.
// Metrics may be nested under "device_metrics" or flat in the payload.
// Returns nil when no known metric is present (e.g. environment-only
// telemetry).
func decodeMetrics(payload json.RawMessage) *DeviceMetrics {
	m := payloadMap(payload)
	if m == nil {
		return nil
	}
	if nested, ok := m["device_metrics"].(map[string]interface{}); ok {
		m = nested
	}

	var metrics DeviceMetrics
	found := false

	if v, ok := numField(m, "battery_level", "batteryLevel"); ok {
		metrics.BatteryLevel = &v
		found = true
	}
	if v, ok := numField(m, "voltage"); ok {
		metrics.Voltage = &v
		found = true
	}
	if v, ok := numField(m, "channel_utilization", "channelUtilization"); ok {
		metrics.ChannelUtilization = &v
		found = true
	}
	if v, ok := numField(m, "air_util_tx", "airUtilTx"); ok {
		metrics.AirUtilTx = &v
		found = true
	}

	if !found {
		return nil
	}
	return &metrics
}

// decodeNodeInfo extracts node identity from a nodeinfo packet.
// Identity fields may be nested under "user" or flat in the payload.
func decodeNodeInfo(payload json.RawMessage) *NodeInfo {
	m := payloadMap(payload)
	if m == nil {
		return nil
	}

	user := m
	if nested, ok := m["user"].(map[string]interface{}); ok {
		user = nested
	}

	info := &NodeInfo{
		ShortName: strField(user, "shortname", "shortName"),
		LongName:  strField(user, "longname", "longName"),
		Hardware:  strField(user, "hwModel", "hardwareModel"),
		Firmware:  strField(m, "firmware_version", "firmwareVersion"),
	}

	if *info == (NodeInfo{}) {
		return nil
	}
	return info
}

// payloadMap unmarshals a raw payload into a generic map, or nil.
func payloadMap(payload json.RawMessage) map[string]interface{} {
	if len(payload) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil
	}
	return m
}

// numField returns the first present numeric field among the given keys.
func numField(m map[string]interface{}, keys ...string) (float64, bool) {
	for _, key := range keys {
		if v, ok := m[key].(float64); ok {
			return v, true
		}
	}
	return 0, false
}

// strField returns the first present non-empty string field among the given keys.
func strField(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
