// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"

	"github.com/tomtom215/trackguard/internal/logging"
	"github.com/tomtom215/trackguard/internal/metrics"
)

// Sink receives alerts that passed the cooldown. Delivering them to a
// person is outside this service; the default sink logs them.
type Sink interface {
	Deliver(ctx context.Context, alert *Alert) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, alert *Alert) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, alert *Alert) error {
	return f(ctx, alert)
}

// LogSink writes each alert as a structured warn-level log line.
type LogSink struct{}

// Deliver implements Sink.
func (LogSink) Deliver(ctx context.Context, alert *Alert) error {
	r := alert.Result
	logging.Ctx(ctx).Warn().
		Str("detection_id", alert.DetectionID).
		Int64("device_id", r.Device.ID).
		Str("address", r.Device.Address).
		Str("source", string(r.Source)).
		Float64("threat_score", r.ThreatScore).
		Int("locations", len(r.Locations)).
		Str("reason", r.Reason).
		Msg("Possible tracker following you")
	return nil
}

// Consumer reads alerts from the bus, applies the per-subject cooldown and
// hands the rest to a Sink.
type Consumer struct {
	router   *message.Router
	cooldown *Cooldown
	sink     Sink
	now      func() time.Time
}

// PubSub is a bus the consumer both reads alerts from and parks
// undeliverable alerts on.
type PubSub interface {
	message.Publisher
	message.Subscriber
}

// Delivery retry policy. After the last retry the alert moves to the
// poison topic and the original is acked.
const (
	deliveryRetries       = 3
	deliveryRetryInterval = 100 * time.Millisecond
)

// PoisonTopic is where alerts the sink kept rejecting end up.
func PoisonTopic(topic string) string {
	return topic + "_poison"
}

// NewConsumer wires a watermill router that consumes topic from bus.
func NewConsumer(bus PubSub, topic string, cooldown *Cooldown, sink Sink, logger watermill.LoggerAdapter) (*Consumer, error) {
	if logger == nil {
		logger = logging.NewWatermillAdapter()
	}
	if sink == nil {
		sink = LogSink{}
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}
	poison, err := middleware.PoisonQueue(bus, PoisonTopic(topic))
	if err != nil {
		return nil, fmt.Errorf("create poison queue: %w", err)
	}
	retry := middleware.Retry{
		MaxRetries:      deliveryRetries,
		InitialInterval: deliveryRetryInterval,
		Multiplier:      2,
		Logger:          logger,
	}
	router.AddMiddleware(poison, retry.Middleware, middleware.Recoverer)

	c := &Consumer{
		router:   router,
		cooldown: cooldown,
		sink:     sink,
		now:      time.Now,
	}
	router.AddConsumerHandler("alert_consumer", topic, bus, c.handle)
	return c, nil
}

// Serve runs the router until ctx is cancelled.
func (c *Consumer) Serve(ctx context.Context) error {
	return c.router.Run(ctx)
}

// String implements fmt.Stringer for suture's logs.
func (c *Consumer) String() string {
	return "alert-consumer"
}

// Running closes once the router is consuming.
func (c *Consumer) Running() <-chan struct{} {
	return c.router.Running()
}

// handle acks malformed messages; a bad payload will not get better on retry.
func (c *Consumer) handle(msg *message.Message) error {
	ctx := msg.Context()

	var alert Alert
	if err := json.Unmarshal(msg.Payload, &alert); err != nil {
		logging.Error().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping malformed alert message")
		return nil
	}

	key := alert.CooldownKey()
	recorded := false
	if c.cooldown != nil {
		allowed, err := c.cooldown.Allow(key, c.now())
		switch {
		case err != nil:
			// Fail open: a broken cooldown store should not hide alerts.
			logging.Warn().Err(err).Str("key", key).Msg("Cooldown check failed, delivering alert")
		case !allowed:
			metrics.AlertsSuppressed.Inc()
			logging.Debug().Str("key", key).Msg("Alert suppressed by cooldown")
			return nil
		default:
			recorded = true
		}
	}

	if err := c.sink.Deliver(ctx, &alert); err != nil {
		// Undo the cooldown entry so the retry, or a later run, is not
		// suppressed by an alert that was never delivered.
		if recorded {
			if rerr := c.cooldown.Reset(key); rerr != nil {
				logging.Warn().Err(rerr).Str("key", key).Msg("Failed to reset cooldown after delivery error")
			}
		}
		return fmt.Errorf("deliver alert %s: %w", alert.DetectionID, err)
	}
	metrics.AlertsDelivered.Inc()
	return nil
}
