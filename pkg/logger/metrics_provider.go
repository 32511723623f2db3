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

package logger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.31.0"
	"google.golang.org/grpc/credentials"
)

// Static errors to match err113 guidance.
var ErrOTelMetricsDisabled = errors.New("OTel metrics exporter disabled")

//nolint:gochecknoglobals // global state is required for coordinated shutdown
var (
	meterMu       sync.Mutex
	meterProvider *sdkmetric.MeterProvider
)

// MetricsConfig captures the information required to initialise the OTEL metrics pipeline.
type MetricsConfig struct {
	ServiceName    string
	ServiceVersion string
	OTel           *OTelConfig
	// ExportInterval controls how often metric data is flushed to the OTLP collector.
	// When zero, the default interval of 15 seconds is used.
	ExportInterval time.Duration
}

// InitializeMetrics configures the global MeterProvider and wires an OTLP exporter so
// the bridge instruments are delivered to the collector.
//
// It is safe to call this multiple times; subsequent calls will return the already
// initialised provider. If metrics exporting is disabled it returns ErrOTelMetricsDisabled.
func InitializeMetrics(ctx context.Context, config MetricsConfig) (*sdkmetric.MeterProvider, error) {
	if config.OTel == nil || !config.OTel.Enabled || config.OTel.Endpoint == "" {
		return nil, ErrOTelMetricsDisabled
	}

	meterMu.Lock()
	defer meterMu.Unlock()

	if meterProvider != nil {
		return meterProvider, nil
	}

	serviceName := config.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	serviceVersion := config.ServiceVersion
	if serviceVersion == "" {
		serviceVersion = defaultServiceVersion
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(config.OTel.Endpoint),
	}

	if config.OTel.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	} else if config.OTel.TLS != nil {
		tlsConfig, err := setupTLSConfig(config.OTel.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to setup metrics TLS configuration: %w", err)
		}

		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(tlsConfig)))
	}

	if len(config.OTel.Headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(config.OTel.Headers))
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	interval := config.ExportInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)

	otel.SetMeterProvider(provider)
	meterProvider = provider

	return meterProvider, nil
}

// shutdownMeterProvider flushes and stops the metrics pipeline.
func shutdownMeterProvider(ctx context.Context) error {
	meterMu.Lock()
	defer meterMu.Unlock()

	if meterProvider == nil {
		return nil
	}

	if err := meterProvider.Shutdown(ctx); err != nil {
		return err
	}

	meterProvider = nil

	return nil
}
