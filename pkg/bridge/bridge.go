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

// Package bridge connects House of IoT device servers to the control bus:
// it authenticates servers, tracks their sessions and relays actions and
// telemetry in both directions.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/hoibridge/pkg/logger"
	"github.com/carverauto/hoibridge/pkg/models"
)

const (
	DefaultPollInterval       = 5 * time.Second
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultTelemetryKey       = models.FramePassiveData
	DefaultOutboxSize         = 64
	DefaultEventSubjectPrefix = "hoi.events"
)

// Config tunes per-session behavior.
type Config struct {
	PollInterval       time.Duration
	HandshakeTimeout   time.Duration
	TelemetryKey       string
	OutboxSize         int
	EventSubjectPrefix string
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}

	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}

	if c.TelemetryKey == "" {
		c.TelemetryKey = DefaultTelemetryKey
	}

	if c.OutboxSize <= 0 {
		c.OutboxSize = DefaultOutboxSize
	}

	if c.EventSubjectPrefix == "" {
		c.EventSubjectPrefix = DefaultEventSubjectPrefix
	}

	return c
}

// Option customizes a Bridge.
type Option func(*Bridge)

// WithClock replaces the clock used for poll tickers and read deadlines.
func WithClock(clock Clock) Option {
	return func(b *Bridge) {
		b.clock = clock
	}
}

// WithRegistry supplies the session registry.
func WithRegistry(registry *Registry) Option {
	return func(b *Bridge) {
		b.registry = registry
	}
}

// Bridge owns the session registry and every per-session task.
type Bridge struct {
	cfg        Config
	dialer     Dialer
	clock      Clock
	registry   *Registry
	events     *Events
	dispatcher *Dispatcher
	logger     logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// HandshakeResult describes how a connect attempt ended.
type HandshakeResult struct {
	State    HandshakeState
	ServerID string
}

// New creates a Bridge that dials device servers with dialer and publishes
// events through publisher.
func New(cfg Config, dialer Dialer, publisher Publisher, log logger.Logger, opts ...Option) *Bridge {
	cfg = cfg.withDefaults()

	b := &Bridge{
		cfg:    cfg,
		dialer: dialer,
		clock:  realClock{},
		logger: log,
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.registry == nil {
		b.registry = NewRegistry()
	}

	b.events = NewEvents(publisher, cfg.EventSubjectPrefix, log)
	b.dispatcher = NewDispatcher(b.registry, b.events, log)

	return b
}

// Registry exposes the session registry.
func (b *Bridge) Registry() *Registry {
	return b.registry
}

// Dispatcher exposes the action dispatcher.
func (b *Bridge) Dispatcher() *Dispatcher {
	return b.dispatcher
}

// Connect dials the device server described by creds and runs the
// handshake. On success the session is registered, announced and its relay
// and passive poller are started; they live until ctx ends or the session
// is removed. A rejected handshake is announced and returns a nil error.
func (b *Bridge) Connect(ctx context.Context, creds models.Credentials) (HandshakeResult, error) {
	log := b.logger.With().
		Str("outside_name", creds.OutsideName).
		Str("address", creds.ConnectionStr).
		Logger()

	dialCtx, cancel := context.WithTimeout(ctx, b.cfg.HandshakeTimeout)
	conn, err := b.dialer.Dial(dialCtx, creds.ConnectionStr)
	cancel()

	if err != nil {
		recordHandshake(ctx, StateConnecting)
		log.Error().Err(err).Msg("Failed to connect to device server")

		return HandshakeResult{State: StateConnecting}, fmt.Errorf("%w: %w", ErrDial, err)
	}

	state, err := authenticate(conn, creds, b.clock.Now().Add(b.cfg.HandshakeTimeout))
	recordHandshake(ctx, state)

	if state != StateAuthenticated {
		log.Warn().Err(err).Msg("Device server handshake rejected")

		if closeErr := conn.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Msg("Failed to close rejected connection")
		}

		// Publish failures are logged by Events and surfaced on the publisher's error channel.
		_ = b.events.AuthResult(ctx, creds.OutsideName, false, "")

		return HandshakeResult{State: state}, nil
	}

	outbox := NewOutbox(b.cfg.OutboxSize)
	id, sessionCtx := b.registry.Register(ctx, creds, outbox)
	recordSessions(ctx, 1)

	log.Info().Str("server_id", id).Msg("Device server authenticated")

	_ = b.events.AuthResult(ctx, creds.OutsideName, true, id)

	if !b.startSession(sessionCtx, id, conn, outbox) {
		log.Warn().Str("server_id", id).Msg("Bridge is closing, dropping new session")
		b.Disconnect(ctx, id)

		_ = conn.Close()
	}

	return HandshakeResult{State: StateAuthenticated, ServerID: id}, nil
}

// ConnectAsync runs Connect in a tracked goroutine so the caller can keep
// consuming commands while the handshake waits on the device.
func (b *Bridge) ConnectAsync(ctx context.Context, creds models.Credentials) {
	b.track(func() {
		_, _ = b.Connect(ctx, creds)
	})
}

func (b *Bridge) startSession(ctx context.Context, id string, conn Conn, outbox *Outbox) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	b.wg.Add(2)

	go func() {
		defer b.wg.Done()
		b.runRelay(ctx, id, conn, outbox)
	}()

	go func() {
		defer b.wg.Done()
		b.runPassivePoller(ctx, id)
	}()

	return true
}

func (b *Bridge) track(fn func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	b.wg.Add(1)

	go func() {
		defer b.wg.Done()
		fn()
	}()

	return true
}

// Disconnect removes a session, ending its relay and poller. It reports
// whether the session existed; only then is a disconnected event published.
// Actions still queued for the session are dropped.
func (b *Bridge) Disconnect(ctx context.Context, id string) bool {
	dropped, ok := b.registry.Remove(id)
	if !ok {
		b.logger.Debug().Str("server_id", id).Msg("Disconnect for unknown session ignored")

		return false
	}

	recordSessions(ctx, -1)

	if len(dropped) > 0 {
		recordDroppedActions(ctx, len(dropped))
		b.logger.Warn().
			Str("server_id", id).
			Int("dropped_actions", len(dropped)).
			Msg("Session removed with pending actions")
	}

	b.logger.Info().Str("server_id", id).Msg("Session disconnected")

	_ = b.events.Disconnected(ctx, id)

	return true
}

// Close removes every live session and waits for all session tasks and
// pending handshakes to finish, or for ctx to end.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	for _, id := range b.registry.IDs() {
		b.Disconnect(ctx, id)
	}

	done := make(chan struct{})

	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for session tasks: %w", ctx.Err())
	}
}
