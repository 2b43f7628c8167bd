// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

func TestWatermillAdapter_Levels(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	a := NewWatermillAdapterWithLogger(zerolog.New(&buf))

	a.Error("publish failed", errors.New("closed"), watermill.LogFields{"topic": "detections"})
	a.Info("subscribed", nil)
	a.Debug("message received", watermill.LogFields{"uuid": "m-1"})
	a.Trace("ack", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 log lines, got %d: %s", len(lines), buf.String())
	}

	checks := []struct {
		line int
		want []string
	}{
		{0, []string{`"level":"error"`, `"error":"closed"`, `"topic":"detections"`, "publish failed"}},
		{1, []string{`"level":"info"`, "subscribed"}},
		{2, []string{`"level":"debug"`, `"uuid":"m-1"`}},
		{3, []string{`"level":"trace"`}},
	}
	for _, c := range checks {
		for _, w := range c.want {
			if !strings.Contains(lines[c.line], w) {
				t.Errorf("line %d missing %s: %s", c.line, w, lines[c.line])
			}
		}
	}
}

func TestWatermillAdapter_With(t *testing.T) {
	var buf bytes.Buffer
	a := NewWatermillAdapterWithLogger(zerolog.New(&buf)).With(watermill.LogFields{"subscriber": "cooldown"})

	a.Info("started", watermill.LogFields{"topic": "detections"})

	output := buf.String()
	if !strings.Contains(output, `"subscriber":"cooldown"`) || !strings.Contains(output, `"topic":"detections"`) {
		t.Errorf("expected inherited and per-call fields: %s", output)
	}
}
