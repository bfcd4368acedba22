package mesh

import "time"

// Kind discriminates mesh packet event types.
// Only KindText proceeds to the chat relay; position, telemetry and
// nodeinfo go to the telemetry path, everything else is ignored.
type Kind string

// Packet kinds published by Meshtastic gateways on the JSON subtree.
const (
	KindText      Kind = "text"
	KindPosition  Kind = "position"
	KindTelemetry Kind = "telemetry"
	KindNodeInfo  Kind = "nodeinfo"
)

// Event is a normalized decoded mesh packet event.
//
// An Event is immutable once constructed: it is produced exactly once per
// inbound broker message and consumed exactly once (dropped or delivered).
type Event struct {
	// Kind is the packet type discriminator from the payload.
	Kind Kind

	// Channel is the mesh channel name, derived from the topic
	// (the segment following "json"). May be empty.
	Channel string

	// SenderID is the stable originating node id in Meshtastic hex form
	// ("!9e9d5748"), derived from the numeric "from" field, or the raw
	// "sender" string when "from" is absent.
	SenderID string

	// PacketID is the mesh packet id used for duplicate suppression.
	// Zero when the payload carries no id.
	PacketID int64

	// Timestamp is the event time from the payload if present,
	// otherwise the receipt time.
	Timestamp time.Time

	// Text is the message body for KindText events. May be empty or
	// whitespace-only; the controller filters such events before dispatch.
	Text string

	// RSSI and SNR describe the radio link for this packet, when reported.
	RSSI *int
	SNR  *float64

	// Position is set for KindPosition events with a usable fix.
	Position *Position

	// Metrics is set for KindTelemetry events carrying device metrics.
	Metrics *DeviceMetrics

	// NodeInfo is set for KindNodeInfo events.
	NodeInfo *NodeInfo
}

// Position is a decoded location fix.
// Latitude and Longitude are in degrees (converted from the integer 1e-7
// representation on the wire).
type Position struct {
	Latitude   float64
	Longitude  float64
	Altitude   *int
	Satellites *int
}

// DeviceMetrics are the device health metrics from a telemetry packet.
// All fields are optional on the wire.
type DeviceMetrics struct {
	BatteryLevel       *float64
	Voltage            *float64
	ChannelUtilization *float64
	AirUtilTx          *float64
}

// NodeInfo carries the self-reported identity of a node.
type NodeInfo struct {
	ShortName string
	LongName  string
	Hardware  string
	Firmware  string
}
