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

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/hoibridge/pkg/logger"
)

const defaultShutdownTimeout = 10 * time.Second

var errNilService = errors.New("service is required")

// Service is a long running component that can be started and stopped.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ServiceOptions configures RunService.
type ServiceOptions struct {
	ServiceName     string
	Service         Service
	Logger          logger.Logger
	ShutdownTimeout time.Duration
	// Signals overrides the signals that trigger shutdown; SIGINT and SIGTERM by default.
	Signals []os.Signal
}

// RunService starts the service and blocks until ctx is done or a shutdown
// signal arrives, then stops the service within the shutdown timeout.
func RunService(ctx context.Context, opts *ServiceOptions) error {
	if opts == nil || opts.Service == nil {
		return errNilService
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := opts.Service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s: %w", opts.ServiceName, err)
	}

	log.Info().Str("service", opts.ServiceName).Msg("Service started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context canceled, shutting down")
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), timeout)
	defer stopCancel()

	cancel()

	if err := opts.Service.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop %s: %w", opts.ServiceName, err)
	}

	log.Info().Str("service", opts.ServiceName).Msg("Service stopped")

	return nil
}
