package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/radiomesh/meshbridge/internal/infrastructure/mqtt"
	"github.com/radiomesh/meshbridge/internal/mesh"
	"github.com/radiomesh/meshbridge/internal/node"
	"github.com/radiomesh/meshbridge/internal/webhook"
)

// State is the controller's connection state.
type State string

// Connection states. The controller moves Connecting → Subscribed on a
// successful connect+subscribe, drops to ReconnectWait on any failure or
// connection loss, and ends Disconnected only on shutdown.
const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateSubscribed    State = "subscribed"
	StateReconnectWait State = "reconnect_wait"
)

// Broker is the subset of the MQTT client the controller drives.
type Broker interface {
	Connect() error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Close() error
	SetOnConnectionLost(callback func(err error))
}

// Sink accepts formatted request bodies for delivery. Enqueue must not
// block; it reports false when the sink refuses the body.
type Sink interface {
	Enqueue(body []byte) bool
}

// MetricsSink receives decoded telemetry for time-series storage.
type MetricsSink interface {
	WriteNodeMetrics(nodeID, kind string, fields map[string]interface{}, timestamp time.Time)
	WriteSignal(nodeID string, rssi int, snr float64)
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config carries the controller's tuning, assembled from the mqtt and
// bridge config sections.
type Config struct {
	// TopicPattern is the subscription filter for mesh packet topics.
	TopicPattern string

	// QoS for the subscription.
	QoS byte

	// InboundQueueSize bounds the channel between the broker callback
	// and the processing loop.
	InboundQueueSize int

	// DedupCacheSize bounds the seen-packet-id cache. 0 disables
	// duplicate suppression.
	DedupCacheSize int

	// ReconnectInitialDelay and ReconnectMaxDelay bound the exponential
	// backoff between reconnection attempts.
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
}

// inboundMessage is a raw broker message queued for processing.
type inboundMessage struct {
	topic      string
	payload    []byte
	receivedAt time.Time
}

// Controller owns the bridge pipeline: it drives the broker connection
// state machine, decodes inbound packet events and dispatches them to the
// webhook and metrics sinks.
//
// The controller, not the MQTT client, owns reconnection. The client
// connects exactly once per Connect call and reports loss via callback;
// all retry policy lives in Run's loop, where it can be observed and
// tested.
type Controller struct {
	cfg    Config
	broker Broker
	text   Sink
	names  *node.Cache
	dedup  *dedup

	// telemetry and metrics are optional; nil disables the path.
	telemetry Sink
	metrics   MetricsSink

	inbound chan inboundMessage
	lost    chan error

	mu     sync.RWMutex
	state  State
	logger Logger
}

// New creates a controller. The telemetry and metrics sinks are optional
// and set via SetTelemetrySink and SetMetricsSink before Run.
func New(cfg Config, broker Broker, text Sink, names *node.Cache) *Controller {
	c := &Controller{
		cfg:     cfg,
		broker:  broker,
		text:    text,
		names:   names,
		dedup:   newDedup(cfg.DedupCacheSize),
		inbound: make(chan inboundMessage, cfg.InboundQueueSize),
		lost:    make(chan error, 1),
		state:   StateDisconnected,
	}
	broker.SetOnConnectionLost(c.handleConnectionLost)
	return c
}

// SetTelemetrySink enables relay of position, telemetry and nodeinfo
// events to a second webhook endpoint.
func (c *Controller) SetTelemetrySink(sink Sink) {
	c.telemetry = sink
}

// SetMetricsSink enables time-series storage of telemetry and signal data.
func (c *Controller) SetMetricsSink(sink MetricsSink) {
	c.metrics = sink
}

// SetLogger sets a logger for pipeline events.
func (c *Controller) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Controller) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run drives the connection state machine until ctx is cancelled.
// Returns nil on clean shutdown; it does not give up on broker failures,
// it backs off and retries forever.
func (c *Controller) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.ReconnectInitialDelay
	bo.MaxInterval = c.cfg.ReconnectMaxDelay
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return nil
		}

		c.setState(StateConnecting)
		c.drainStaleLoss()
		if err := c.connectAndSubscribe(); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("broker connection failed", "error", err)
			}
			c.setState(StateReconnectWait)
			if !c.waitBackoff(ctx, bo.NextBackOff()) {
				c.setState(StateDisconnected)
				return nil
			}
			continue
		}

		bo.Reset()
		c.setState(StateSubscribed)
		if logger := c.getLogger(); logger != nil {
			logger.Info("subscribed to mesh packet topics",
				"topic", c.cfg.TopicPattern, "qos", c.cfg.QoS)
		}

		lostErr := c.pump(ctx)
		if ctx.Err() != nil {
			c.teardown()
			c.setState(StateDisconnected)
			return nil
		}

		if logger := c.getLogger(); logger != nil {
			logger.Warn("broker connection lost", "error", lostErr)
		}
		_ = c.broker.Close()
		c.setState(StateReconnectWait)
		if !c.waitBackoff(ctx, bo.NextBackOff()) {
			c.setState(StateDisconnected)
			return nil
		}
	}
}

// connectAndSubscribe performs one connect attempt and subscribes the
// inbound handler. A subscribe failure tears the connection back down so
// the next attempt starts clean.
func (c *Controller) connectAndSubscribe() error {
	if err := c.broker.Connect(); err != nil {
		return err
	}
	if err := c.broker.Subscribe(c.cfg.TopicPattern, c.cfg.QoS, c.enqueueInbound); err != nil {
		_ = c.broker.Close()
		return err
	}
	return nil
}

// teardown unsubscribes and closes the broker connection on shutdown.
func (c *Controller) teardown() {
	if err := c.broker.Unsubscribe(c.cfg.TopicPattern); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Debug("unsubscribe on shutdown failed", "error", err)
		}
	}
	_ = c.broker.Close()
}

// pump processes inbound messages until the context is cancelled or the
// connection is lost. Returns the loss cause, nil on cancellation.
func (c *Controller) pump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-c.lost:
			return err
		case msg := <-c.inbound:
			c.handle(ctx, msg)
		}
	}
}

// waitBackoff sleeps for the backoff delay while still draining messages
// already queued before the connection dropped. Returns false when ctx is
// cancelled.
func (c *Controller) waitBackoff(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case msg := <-c.inbound:
			c.handle(ctx, msg)
		}
	}
}

// drainStaleLoss discards a loss report buffered by a previous connection
// so pump cannot mistake it for a loss of the one about to be made. Called
// before each connect attempt, when the old connection is already closed
// and any buffered report is necessarily stale.
func (c *Controller) drainStaleLoss() {
	select {
	case <-c.lost:
	default:
	}
}

// handleConnectionLost is wired into the broker client; it nudges pump
// without blocking the client's callback goroutine.
func (c *Controller) handleConnectionLost(err error) {
	select {
	case c.lost <- err:
	default:
	}
}

// enqueueInbound is the broker message handler. It never blocks the
// client's receive goroutine: on a full queue the oldest pending message
// is dropped in favor of the newest.
func (c *Controller) enqueueInbound(topic string, payload []byte) error {
	msg := inboundMessage{topic: topic, payload: payload, receivedAt: time.Now()}
	for {
		select {
		case c.inbound <- msg:
			return nil
		default:
		}
		select {
		case old := <-c.inbound:
			if logger := c.getLogger(); logger != nil {
				logger.Warn("inbound queue full, dropping oldest message",
					"dropped_topic", old.topic,
					"queue_size", cap(c.inbound))
			}
		default:
		}
	}
}

// handle decodes one raw message and dispatches the resulting event.
func (c *Controller) handle(ctx context.Context, msg inboundMessage) {
	if !mqtt.IsJSONTopic(msg.topic) {
		return
	}

	ev, err := mesh.Decode(msg.payload, msg.topic, msg.receivedAt)
	if err != nil {
		logger := c.getLogger()
		if logger == nil {
			return
		}
		if errors.Is(err, mesh.ErrMalformed) {
			logger.Warn("dropping malformed packet event",
				"topic", msg.topic, "error", err)
		} else {
			// Unknown kinds and senderless packets are routine on a
			// public mesh; keep them off the warn level.
			logger.Debug("skipping packet event", "topic", msg.topic, "error", err)
		}
		return
	}

	if c.dedup.Seen(ev.PacketID) {
		if logger := c.getLogger(); logger != nil {
			logger.Debug("suppressing duplicate packet",
				"packet_id", ev.PacketID, "sender", ev.SenderID)
		}
		return
	}

	c.recordSignal(ev)

	switch ev.Kind {
	case mesh.KindText:
		c.relayText(ev)
	case mesh.KindNodeInfo:
		if ev.NodeInfo != nil {
			c.names.Update(ctx, ev.SenderID, node.Names{
				Short: ev.NodeInfo.ShortName,
				Long:  ev.NodeInfo.LongName,
			})
		}
		c.relayTelemetry(ev)
	case mesh.KindPosition:
		c.recordPosition(ev)
		c.relayTelemetry(ev)
	case mesh.KindTelemetry:
		c.recordMetrics(ev)
		c.relayTelemetry(ev)
	}
}

// relayText formats a text event and hands it to the text webhook sink.
// Events whose text is empty after trimming are dropped without delivery.
func (c *Controller) relayText(ev *mesh.Event) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		if logger := c.getLogger(); logger != nil {
			logger.Debug("dropping empty text message", "sender", ev.SenderID)
		}
		return
	}

	display := c.names.DisplayName(ev.SenderID)
	body, err := webhook.TextMessage(display, text)
	if err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Error("failed to build webhook payload", "error", err)
		}
		return
	}

	if !c.text.Enqueue(body) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("text sink refused message", "sender", ev.SenderID)
		}
		return
	}
	if logger := c.getLogger(); logger != nil {
		logger.Info("relayed text message",
			"sender", ev.SenderID, "channel", ev.Channel, "length", len(text))
	}
}

// relayTelemetry formats a non-text event as an embed for the telemetry
// webhook, when one is configured.
func (c *Controller) relayTelemetry(ev *mesh.Event) {
	if c.telemetry == nil {
		return
	}
	display := c.names.DisplayName(ev.SenderID)
	body, err := webhook.TelemetryMessage(ev, display)
	if err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Error("failed to build telemetry payload",
				"kind", ev.Kind, "error", err)
		}
		return
	}
	if !c.telemetry.Enqueue(body) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("telemetry sink refused message", "sender", ev.SenderID)
		}
	}
}

// recordSignal stores the radio link quality for any packet reporting it.
func (c *Controller) recordSignal(ev *mesh.Event) {
	if c.metrics == nil || (ev.RSSI == nil && ev.SNR == nil) {
		return
	}
	var rssi int
	if ev.RSSI != nil {
		rssi = *ev.RSSI
	}
	var snr float64
	if ev.SNR != nil {
		snr = *ev.SNR
	}
	c.metrics.WriteSignal(ev.SenderID, rssi, snr)
}

// recordPosition stores a decoded location fix.
func (c *Controller) recordPosition(ev *mesh.Event) {
	if c.metrics == nil || ev.Position == nil {
		return
	}

	fields := map[string]interface{}{
		"latitude":  ev.Position.Latitude,
		"longitude": ev.Position.Longitude,
	}
	if ev.Position.Altitude != nil {
		fields["altitude"] = *ev.Position.Altitude
	}
	if ev.Position.Satellites != nil {
		fields["sats_in_view"] = *ev.Position.Satellites
	}
	c.metrics.WriteNodeMetrics(ev.SenderID, string(ev.Kind), fields, ev.Timestamp)
}

// recordMetrics stores decoded device metrics from a telemetry event.
func (c *Controller) recordMetrics(ev *mesh.Event) {
	if c.metrics == nil || ev.Metrics == nil {
		return
	}

	fields := make(map[string]interface{}, 4)
	if ev.Metrics.BatteryLevel != nil {
		fields["battery_level"] = *ev.Metrics.BatteryLevel
	}
	if ev.Metrics.Voltage != nil {
		fields["voltage"] = *ev.Metrics.Voltage
	}
	if ev.Metrics.ChannelUtilization != nil {
		fields["channel_utilization"] = *ev.Metrics.ChannelUtilization
	}
	if ev.Metrics.AirUtilTx != nil {
		fields["air_util_tx"] = *ev.Metrics.AirUtilTx
	}
	if len(fields) == 0 {
		return
	}
	c.metrics.WriteNodeMetrics(ev.SenderID, string(ev.Kind), fields, ev.Timestamp)
}
