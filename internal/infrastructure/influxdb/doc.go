// Package influxdb provides the optional telemetry metrics sink.
//
// Mesh packets carry device metrics (battery level, voltage, channel
// utilisation) and position fixes alongside chat traffic. When InfluxDB
// is enabled in config, decoded metrics are written here tagged by node
// id, giving the mesh a free time-series dashboard without touching the
// chat relay path.
//
// # Characteristics
//
//   - Writes are non-blocking and batched (never stall the pipeline)
//   - Write errors surface through an async callback, logged by main
//   - Disabled by default; Connect returns ErrDisabled when off
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without metrics
//	}
package influxdb
