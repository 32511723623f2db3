/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package bridge

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName              = "hoibridge.bridge"
	metricHandshakeTotal   = "hoi_bridge_handshake_total"
	metricSessionsActive   = "hoi_bridge_sessions_active"
	metricFramesTotal      = "hoi_bridge_device_frames_total"
	metricDroppedActions   = "hoi_bridge_dropped_actions_total"
	metricActionsSentTotal = "hoi_bridge_actions_sent_total"
)

var (
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	meterOnce sync.Once
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	handshakeCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	sessionsGauge metric.Int64UpDownCounter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	framesCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	droppedCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	actionsCounter metric.Int64Counter
)

func initMeter() {
	meter := otel.Meter(meterName)

	var err error

	handshakeCounter, err = meter.Int64Counter(
		metricHandshakeTotal,
		metric.WithDescription("Handshake attempts by outcome"),
	)
	if err != nil {
		otel.Handle(err)
	}

	sessionsGauge, err = meter.Int64UpDownCounter(
		metricSessionsActive,
		metric.WithDescription("Authenticated sessions currently registered"),
	)
	if err != nil {
		otel.Handle(err)
	}

	framesCounter, err = meter.Int64Counter(
		metricFramesTotal,
		metric.WithDescription("Frames read from device servers by class"),
	)
	if err != nil {
		otel.Handle(err)
	}

	droppedCounter, err = meter.Int64Counter(
		metricDroppedActions,
		metric.WithDescription("Queued actions discarded because their session ended"),
	)
	if err != nil {
		otel.Handle(err)
	}

	actionsCounter, err = meter.Int64Counter(
		metricActionsSentTotal,
		metric.WithDescription("Actions written to device servers by outcome"),
	)
	if err != nil {
		otel.Handle(err)
	}
}

func recordHandshake(ctx context.Context, state HandshakeState) {
	meterOnce.Do(initMeter)
	if handshakeCounter == nil {
		return
	}

	handshakeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state.String())))
}

func recordSessions(ctx context.Context, delta int64) {
	meterOnce.Do(initMeter)
	if sessionsGauge == nil {
		return
	}

	sessionsGauge.Add(ctx, delta)
}

func recordFrame(ctx context.Context, class frameClass) {
	meterOnce.Do(initMeter)
	if framesCounter == nil {
		return
	}

	framesCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("class", class.String())))
}

func recordDroppedActions(ctx context.Context, count int) {
	if count == 0 {
		return
	}

	meterOnce.Do(initMeter)
	if droppedCounter == nil {
		return
	}

	droppedCounter.Add(ctx, int64(count))
}

func recordActionSent(ctx context.Context, outcome string) {
	meterOnce.Do(initMeter)
	if actionsCounter == nil {
		return
	}

	actionsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
