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

package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/hoibridge/pkg/bridge"
	"github.com/carverauto/hoibridge/pkg/lifecycle"
	"github.com/carverauto/hoibridge/pkg/logger"
	"github.com/carverauto/hoibridge/pkg/natsbus"
	"github.com/carverauto/hoibridge/pkg/natsutil"
	"github.com/carverauto/hoibridge/pkg/wstransport"
)

var errAlreadyStarted = errors.New("gateway already started")

// Option customizes a Service.
type Option func(*Service)

// WithDialer replaces the websocket dialer used to reach device servers.
func WithDialer(dialer bridge.Dialer) Option {
	return func(s *Service) {
		s.dialer = dialer
	}
}

// Service consumes bridge commands from JetStream and publishes bridge
// events back to it.
type Service struct {
	cfg    *Config
	logger logger.Logger
	dialer bridge.Dialer

	mu        sync.Mutex
	nc        *nats.Conn
	bridge    *bridge.Bridge
	publisher *natsbus.Publisher
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewService validates cfg and creates a Service.
func NewService(cfg *Config, log logger.Logger, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    cfg,
		logger: log,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.dialer == nil {
		s.dialer = wstransport.NewDialer(time.Duration(cfg.HandshakeTimeout), 0)
	}

	return s, nil
}

// Start connects to NATS, makes sure the stream exists and begins
// consuming commands.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nc != nil {
		return errAlreadyStarted
	}

	nc, err := natsutil.Connect(s.cfg.NATSURL, s.cfg.Security, s.logger, nats.Name("hoi-bridge"))
	if err != nil {
		return err
	}

	js, err := natsutil.JetStream(nc, s.cfg.Domain)
	if err != nil {
		nc.Close()

		return err
	}

	subjects := []string{s.cfg.CommandSubject, s.cfg.EventSubjectPrefix + ".>"}
	if _, err := natsutil.EnsureStream(ctx, js, s.cfg.StreamName, subjects); err != nil {
		nc.Close()

		return err
	}

	consumer, err := natsbus.NewConsumer(ctx, js, natsbus.ConsumerConfig{
		Stream:  s.cfg.StreamName,
		Durable: s.cfg.ConsumerName,
		Subject: s.cfg.CommandSubject,
	}, s.logger)
	if err != nil {
		nc.Close()

		return err
	}

	s.nc = nc
	s.publisher = natsbus.NewPublisher(js, natsbus.PublisherConfig{
		MaxElapsed: time.Duration(s.cfg.PublishMaxElapsed),
	}, s.logger)
	s.bridge = bridge.New(s.cfg.bridgeConfig(), s.dialer, s.publisher, s.logger)

	router := bridge.NewRouter(s.bridge, s.logger)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(3)

	go func() {
		defer s.wg.Done()

		if err := consumer.ProcessMessages(runCtx, router); err != nil {
			s.logger.Error().Err(err).Msg("Command consumer stopped")
		}
	}()

	go func() {
		defer s.wg.Done()
		s.drainPublishErrors(runCtx)
	}()

	go func() {
		defer s.wg.Done()
		s.reportStatus(runCtx)
	}()

	s.logger.Info().
		Str("stream", s.cfg.StreamName).
		Str("command_subject", s.cfg.CommandSubject).
		Str("event_prefix", s.cfg.EventSubjectPrefix).
		Msg("HOI bridge started")

	return nil
}

// Stop ends every session, waits for background work and closes the NATS
// connection.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nc == nil {
		return nil
	}

	s.cancel()

	var errs []error

	if err := s.bridge.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for gateway workers: %w", ctx.Err()))
	}

	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
	}

	s.nc = nil

	s.logger.Info().Msg("HOI bridge stopped")

	return errors.Join(errs...)
}

// Sessions reports the number of live sessions.
func (s *Service) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bridge == nil {
		return 0
	}

	return s.bridge.Registry().Len()
}

func (s *Service) drainPublishErrors(ctx context.Context) {
	errs := s.publisher.Errors()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			s.logger.Error().Err(err).Msg("Dropped bridge event after retries")
		}
	}
}

func (s *Service) reportStatus(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.StatusInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logger.Info().Int("sessions", s.bridge.Registry().Len()).Msg("Bridge status")
		}
	}
}

var _ lifecycle.Service = (*Service)(nil)
