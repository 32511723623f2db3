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

// Package natsbus carries bridge commands and events over NATS JetStream.
package natsbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/hoibridge/pkg/logger"
)

const (
	defaultPublishMaxElapsed = 5 * time.Second
	defaultInitialBackoff    = 100 * time.Millisecond
	defaultMaxBackoff        = time.Second
	defaultErrorBuffer       = 64
)

type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// PublisherConfig bounds publish retries.
type PublisherConfig struct {
	MaxElapsed      time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	ErrorBuffer     int
}

// PublishError reports an event that could not be delivered.
type PublishError struct {
	Subject string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s failed: %v", e.Subject, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Publisher publishes events to JetStream one at a time, retrying transient
// failures with exponential backoff. Events that still fail are returned to
// the caller and also reported on Errors.
type Publisher struct {
	js     streamPublisher
	cfg    PublisherConfig
	logger logger.Logger

	mu   sync.Mutex
	errs chan error
}

// NewPublisher creates a Publisher over js.
func NewPublisher(js streamPublisher, cfg PublisherConfig, log logger.Logger) *Publisher {
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = defaultPublishMaxElapsed
	}

	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaultInitialBackoff
	}

	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = defaultMaxBackoff
	}

	if cfg.ErrorBuffer <= 0 {
		cfg.ErrorBuffer = defaultErrorBuffer
	}

	return &Publisher{
		js:     js,
		cfg:    cfg,
		logger: log,
		errs:   make(chan error, cfg.ErrorBuffer),
	}
}

// Errors delivers publish failures. Failures are dropped when nobody drains
// the channel.
func (p *Publisher) Errors() <-chan error {
	return p.errs
}

// Publish sends payload to subject and waits for the stream acknowledgement.
func (p *Publisher) Publish(ctx context.Context, subject string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.InitialInterval
	bo.MaxInterval = p.cfg.MaxInterval
	bo.Multiplier = 1.6
	bo.RandomizationFactor = 0.2

	attempts := 0

	operation := func() (*jetstream.PubAck, error) {
		attempts++

		ack, err := p.js.Publish(ctx, subject, payload)
		if err != nil {
			if shouldRetryPublish(err) {
				return nil, err
			}

			return nil, backoff.Permanent(err)
		}

		return ack, nil
	}

	ack, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(p.cfg.MaxElapsed))
	if err != nil {
		recordPublish(ctx, subject, outcomeFailed)

		pubErr := &PublishError{Subject: subject, Err: err}
		p.report(pubErr)

		return pubErr
	}

	recordPublish(ctx, subject, outcomeOK)

	p.logger.Trace().
		Str("subject", subject).
		Uint64("seq", ack.Sequence).
		Int("attempts", attempts).
		Msg("Published event")

	return nil
}

func (p *Publisher) report(err error) {
	select {
	case p.errs <- err:
	default:
		p.logger.Warn().Err(err).Msg("Publish error channel full, dropping error")
	}
}

func shouldRetryPublish(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrBadSubject),
		errors.Is(err, nats.ErrMaxPayload):
		return false
	default:
		return true
	}
}
