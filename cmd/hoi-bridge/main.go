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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/carverauto/hoibridge/pkg/config"
	"github.com/carverauto/hoibridge/pkg/gateway"
	"github.com/carverauto/hoibridge/pkg/lifecycle"
	"github.com/carverauto/hoibridge/pkg/logger"
	"github.com/carverauto/hoibridge/pkg/version"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/hoi-bridge/hoi-bridge.json", "Path to config file")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())

		return nil
	}

	ctx := context.Background()

	var cfg gateway.Config

	if err := config.NewConfig(nil).LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return err
	}

	loggerConfig := cfg.Logging
	if loggerConfig == nil {
		loggerConfig = logger.DefaultConfig()
	}

	if err := lifecycle.InitializeLogger(ctx, loggerConfig); err != nil {
		return err
	}

	defer func() {
		if err := lifecycle.ShutdownLogger(); err != nil {
			log.Printf("Failed to shut down logger: %v", err)
		}
	}()

	serviceLogger, err := lifecycle.CreateComponentLogger(ctx, "hoi-bridge", loggerConfig)
	if err != nil {
		return err
	}

	if _, err := logger.InitializeMetrics(ctx, logger.MetricsConfig{
		ServiceName:    "hoi-bridge",
		ServiceVersion: version.Version(),
		OTel:           cfg.Metrics,
	}); err != nil && !errors.Is(err, logger.ErrOTelMetricsDisabled) {
		serviceLogger.Warn().Err(err).Msg("Metrics export unavailable")
	}

	serviceLogger.Info().
		Str("version", version.Version()).
		Str("commit", version.Commit()).
		Msg("Starting hoi-bridge")

	svc, err := gateway.NewService(&cfg, serviceLogger)
	if err != nil {
		return err
	}

	return lifecycle.RunService(ctx, &lifecycle.ServiceOptions{
		ServiceName: "hoi-bridge",
		Service:     svc,
		Logger:      serviceLogger,
	})
}
