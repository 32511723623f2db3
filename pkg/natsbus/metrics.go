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

package natsbus

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName           = "hoibridge.natsbus"
	metricPublishTotal  = "hoi_bridge_bus_publish_total"
	metricCommandsTotal = "hoi_bridge_bus_commands_total"

	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

var (
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	meterOnce sync.Once
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	publishCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	commandCounter metric.Int64Counter
)

func initMeter() {
	meter := otel.Meter(meterName)

	counter, err := meter.Int64Counter(
		metricPublishTotal,
		metric.WithDescription("Events published to the control bus by outcome"),
	)
	if err != nil {
		otel.Handle(err)
	}
	publishCounter = counter

	commands, err := meter.Int64Counter(
		metricCommandsTotal,
		metric.WithDescription("Commands consumed from the control bus"),
	)
	if err != nil {
		otel.Handle(err)
	}
	commandCounter = commands
}

func recordPublish(ctx context.Context, subject, outcome string) {
	meterOnce.Do(initMeter)
	if publishCounter == nil {
		return
	}

	publishCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("subject", subject),
		attribute.String("outcome", outcome),
	))
}

func recordCommand(ctx context.Context) {
	meterOnce.Do(initMeter)
	if commandCounter == nil {
		return
	}

	commandCounter.Add(ctx, 1)
}
