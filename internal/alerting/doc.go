// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

/*
Package alerting fans detection results out as alerts.

The scheduler publishes every result at or above the alert threshold to a
watermill topic. A Consumer reads the topic, drops subjects that already
alerted within the cooldown window, and passes the rest to a Sink.

Cooldowns are keyed by subject: a device ID for device detections and the
shadow key for shadow detections, so a tracker that rotates its address
still alerts once per window.

	bus := alerting.NewBus(nil)
	cooldown, _ := alerting.OpenCooldown("", 6*time.Hour)
	consumer, _ := alerting.NewConsumer(bus, "detections", cooldown, alerting.LogSink{}, nil)
	go consumer.Serve(ctx)

	pub := alerting.NewPublisher(bus, "detections", 0.6)
	pub.Publish(ctx, time.Now(), results)

Publish blocks until the consumer acked each alert. A Sink error is retried
a few times with backoff; after that the alert is moved to PoisonTopic and
the original acked.

The gochannel bus is not persistent: alerts published while no consumer is
subscribed are lost.
*/
package alerting
