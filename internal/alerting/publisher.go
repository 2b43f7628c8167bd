// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package alerting

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/trackguard/internal/detection"
	"github.com/tomtom215/trackguard/internal/logging"
	"github.com/tomtom215/trackguard/internal/metrics"
)

// NewBus creates the in-process pub/sub the publisher and consumer share.
// Publish returns once every subscriber has acked, so alerts are handled in
// publish order.
func NewBus(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	if logger == nil {
		logger = logging.NewWatermillAdapter()
	}
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
}

// Publisher turns detection results into bus messages.
type Publisher struct {
	pub      message.Publisher
	topic    string
	minScore float64
}

// NewPublisher publishes on topic. Results scoring below minScore are not
// published.
func NewPublisher(pub message.Publisher, topic string, minScore float64) *Publisher {
	return &Publisher{pub: pub, topic: topic, minScore: minScore}
}

// Publish sends one message per qualifying result and returns how many
// were sent.
func (p *Publisher) Publish(ctx context.Context, runAt time.Time, results []detection.DetectionResult) (int, error) {
	msgs := make([]*message.Message, 0, len(results))
	for i := range results {
		r := &results[i]
		if r.ThreatScore < p.minScore {
			continue
		}

		payload, err := json.Marshal(Alert{DetectionID: r.ID, RunAt: runAt, Result: *r})
		if err != nil {
			return 0, fmt.Errorf("marshal alert %s: %w", r.ID, err)
		}

		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set(MetadataDeviceID, strconv.FormatInt(r.Device.ID, 10))
		msg.Metadata.Set(MetadataSource, string(r.Source))
		if r.ShadowKey != "" {
			msg.Metadata.Set(MetadataShadowKey, r.ShadowKey)
		}
		msg.SetContext(ctx)
		msgs = append(msgs, msg)
	}

	if len(msgs) == 0 {
		return 0, nil
	}
	if err := p.pub.Publish(p.topic, msgs...); err != nil {
		return 0, fmt.Errorf("publish alerts: %w", err)
	}

	metrics.AlertsPublished.Add(float64(len(msgs)))
	logging.Ctx(ctx).Debug().Int("alerts", len(msgs)).Str("topic", p.topic).Msg("Published detection alerts")
	return len(msgs), nil
}
