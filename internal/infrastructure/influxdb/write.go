package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteNodeMetrics writes decoded device metrics for one mesh node.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Calling with an empty fields map is a no-op.
//
// Parameters:
//   - nodeID: Meshtastic node id in hex form (e.g., "!9e9d5748")
//   - kind: packet kind the metrics came from ("telemetry", "position", ...)
//   - fields: numeric metric values (battery_level, voltage, altitude, ...)
//   - timestamp: event time from the packet, or receipt time
//
// Example:
//
//	client.WriteNodeMetrics("!9e9d5748", "telemetry",
//	    map[string]interface{}{"battery_level": 87.0, "voltage": 4.01},
//	    ev.Timestamp)
func (c *Client) WriteNodeMetrics(nodeID, kind string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"mesh_telemetry",
		map[string]string{
			"node_id": nodeID,
			"kind":    kind,
		},
		fields,
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteSignal writes radio link quality for a received packet.
//
// Parameters:
//   - nodeID: originating node id
//   - rssi: received signal strength in dBm
//   - snr: signal-to-noise ratio in dB
func (c *Client) WriteSignal(nodeID string, rssi int, snr float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"mesh_signal",
		map[string]string{
			"node_id": nodeID,
		},
		map[string]interface{}{
			"rssi": rssi,
			"snr":  snr,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
