// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package timeseries records per-turn analytics to InfluxDB.
//
// Each finished turn becomes one point carrying latency, queue depth, and
// the scene's numeric state. Events are buffered through a channel and
// written by a single background goroutine; the sink itself never blocks,
// and overflow drops events rather than stalling gameplay.
package timeseries

import (
	"context"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/ProsceniumAI/Proscenium/services/stage/session"
)

// measurement names every turn point.
const measurement = "stage_turns"

// Buffered events between the sink and the writer goroutine.
const eventBuffer = 256

// writeTimeout bounds one point write.
const writeTimeout = 5 * time.Second

// Config connects the recorder to an InfluxDB instance.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Recorder consumes turn events and writes them to InfluxDB.
type Recorder struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	events chan session.TurnEvent
	done   chan struct{}
	stop   sync.Once
}

// New starts a recorder. A missing URL or token returns nil, which callers
// treat as analytics disabled; every method tolerates a nil receiver.
func New(cfg Config) *Recorder {
	if cfg.URL == "" || cfg.Token == "" {
		slog.Info("no influxdb configured, turn analytics disabled")
		return nil
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	r := &Recorder{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		events: make(chan session.TurnEvent, eventBuffer),
		done:   make(chan struct{}),
	}
	go r.run()

	slog.Info("turn analytics enabled",
		"influx_url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return r
}

// Ping checks the InfluxDB health endpoint.
func (r *Recorder) Ping(ctx context.Context) error {
	if r == nil {
		return nil
	}
	health, err := r.client.Health(ctx)
	if err != nil {
		return err
	}
	if health.Status != "pass" {
		msg := "unknown"
		if health.Message != nil {
			msg = *health.Message
		}
		slog.Warn("influxdb health check not passing", "status", health.Status, "message", msg)
	}
	return nil
}

// Sink returns the TurnSink feeding this recorder, or nil when the recorder
// is disabled.
func (r *Recorder) Sink() session.TurnSink {
	if r == nil {
		return nil
	}
	return r.enqueue
}

// newRecorder wires a recorder around an arbitrary write API. Tests use it
// to avoid a live server.
func newRecorder(w api.WriteAPIBlocking) *Recorder {
	r := &Recorder{
		write:  w,
		events: make(chan session.TurnEvent, eventBuffer),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) enqueue(ev session.TurnEvent) {
	select {
	case r.events <- ev:
	default:
		// Analytics must never stall the turn path; overflow drops.
		slog.Debug("turn analytics buffer full, dropping event",
			"session_id", ev.SessionID,
		)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := r.write.WritePoint(ctx, turnPoint(ev, time.Now()))
		cancel()
		if err != nil {
			slog.Warn("turn analytics write failed",
				"session_id", ev.SessionID,
				"error", err,
			)
		}
	}
}

// Close drains pending events and shuts the client down. Safe to call more
// than once and on a nil recorder.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.stop.Do(func() {
		close(r.events)
		<-r.done
		if r.client != nil {
			r.client.Close()
		}
	})
}

// turnPoint flattens one turn event into a point. Scene and status are tags;
// IDs stay fields to keep series cardinality bounded.
func turnPoint(ev session.TurnEvent, at time.Time) *write.Point {
	fields := map[string]interface{}{
		"session_id":  ev.SessionID,
		"player_id":   ev.PlayerID,
		"latency_ms":  ev.Latency.Milliseconds(),
		"queue_depth": ev.QueueDepth,
	}
	for name, value := range ev.Numbers {
		fields["num_"+name] = value
	}

	return influxdb2.NewPoint(
		measurement,
		map[string]string{
			"scene":  ev.Scene,
			"status": ev.Status,
		},
		fields,
		at,
	)
}
