// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeMetrics exposes process-level health metrics via OTel.
//
// Description:
//
//	Registers observable instruments that report process uptime and
//	goroutine count on every metric collection. Domain-specific counters
//	(retrievals, playback buffers) live with their services; this type
//	only covers process vitals shared by every Aleutian Voice binary.
//
// Thread Safety: Safe for concurrent use after creation.
type RuntimeMetrics struct {
	// UptimeSeconds reports seconds since NewRuntimeMetrics was called.
	UptimeSeconds metric.Float64ObservableCounter

	// Goroutines reports the current goroutine count.
	Goroutines metric.Int64ObservableGauge

	start time.Time
}

// NewRuntimeMetrics registers process vitals with the provided meter.
//
// Inputs:
//
//	meter - The OTel meter to use for instrument registration.
//
// Outputs:
//
//	*RuntimeMetrics - The registered instruments.
//	error - Non-nil if instrument registration fails.
//
// Example:
//
//	rm, err := telemetry.NewRuntimeMetrics(otel.Meter("aleutian.voice.gateway"))
//	if err != nil {
//	    return fmt.Errorf("register runtime metrics: %w", err)
//	}
//	_ = rm
func NewRuntimeMetrics(meter metric.Meter) (*RuntimeMetrics, error) {
	m := &RuntimeMetrics{start: time.Now()}
	var err error

	m.UptimeSeconds, err = meter.Float64ObservableCounter(
		"voice_process_uptime_seconds",
		metric.WithDescription("Seconds since process start"),
		metric.WithUnit("s"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(time.Since(m.start).Seconds())
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create uptime counter: %w", err)
	}

	m.Goroutines, err = meter.Int64ObservableGauge(
		"voice_process_goroutines",
		metric.WithDescription("Current goroutine count"),
		metric.WithUnit("{goroutine}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(runtime.NumGoroutine()))
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create goroutine gauge: %w", err)
	}

	return m, nil
}
