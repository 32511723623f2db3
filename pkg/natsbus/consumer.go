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
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/hoibridge/pkg/logger"
)

const (
	defaultMaxPullMessages = 10
	defaultPullExpiry      = 30 * time.Second
	defaultAckWait         = 30 * time.Second
	fetchRetryDelay        = time.Second
)

// MessageHandler consumes one command payload. Handlers report problems
// through logging; every message is acknowledged once handled.
type MessageHandler interface {
	HandleMessage(ctx context.Context, data []byte)
}

// HandlerFunc adapts a function to MessageHandler.
type HandlerFunc func(ctx context.Context, data []byte)

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, data []byte) {
	f(ctx, data)
}

type pullConsumer interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

// ConsumerConfig names the durable pull consumer commands are read from.
type ConsumerConfig struct {
	Stream    string
	Durable   string
	Subject   string
	BatchSize int
	FetchWait time.Duration
}

// Consumer reads commands sequentially from a JetStream pull consumer.
type Consumer struct {
	consumer pullConsumer
	cfg      ConsumerConfig
	logger   logger.Logger
}

// NewConsumer creates or updates the durable consumer described by cfg.
func NewConsumer(ctx context.Context, js jetstream.JetStream, cfg ConsumerConfig, log logger.Logger) (*Consumer, error) {
	consumerCfg := jetstream.ConsumerConfig{
		Durable:       cfg.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       defaultAckWait,
		MaxAckPending: 1000,
	}
	if cfg.Subject != "" {
		consumerCfg.FilterSubject = cfg.Subject
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, cfg.Stream, consumerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s on stream %s: %w", cfg.Durable, cfg.Stream, err)
	}

	log.Info().
		Str("stream", cfg.Stream).
		Str("consumer", cfg.Durable).
		Str("subject", cfg.Subject).
		Msg("Pull consumer ready")

	return newConsumer(consumer, cfg, log), nil
}

func newConsumer(consumer pullConsumer, cfg ConsumerConfig, log logger.Logger) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultMaxPullMessages
	}

	if cfg.FetchWait <= 0 {
		cfg.FetchWait = defaultPullExpiry
	}

	return &Consumer{consumer: consumer, cfg: cfg, logger: log}
}

// ProcessMessages fetches and handles messages until ctx is cancelled. It
// only returns an error when the NATS connection is closed underneath it.
func (c *Consumer) ProcessMessages(ctx context.Context, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Stopping command consumer")

			return nil
		default:
		}

		msgs, err := c.consumer.Fetch(c.cfg.BatchSize, jetstream.FetchMaxWait(c.cfg.FetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrConnectionClosed) {
				return fmt.Errorf("command consumer stopped: %w", err)
			}

			c.logger.Warn().Err(err).Msg("Failed to fetch commands")

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchRetryDelay):
			}

			continue
		}

		for msg := range msgs.Messages() {
			c.handleMessage(ctx, msg, handler)
		}

		if fetchErr := msgs.Error(); fetchErr != nil && !errors.Is(fetchErr, nats.ErrTimeout) {
			c.logger.Debug().Err(fetchErr).Msg("Fetch ended with error")
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg, handler MessageHandler) {
	recordCommand(ctx)

	handler.HandleMessage(ctx, msg.Data())

	if err := msg.Ack(); err != nil {
		c.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("Failed to ack command")
	}
}
