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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/carverauto/hoibridge/pkg/models"
	"golang.org/x/sync/errgroup"
)

type frameClass int

const (
	frameIgnored frameClass = iota
	frameActionOutcome
	frameTelemetry
)

func (c frameClass) String() string {
	switch c {
	case frameActionOutcome:
		return "action_outcome"
	case frameTelemetry:
		return "telemetry"
	default:
		return "ignored"
	}
}

// classifyFrame decides what an inbound device frame is. Telemetry arrives
// either as an object holding the snapshot under key, or as a bare array.
func classifyFrame(frame, key string) (frameClass, models.TelemetrySnapshot) {
	if frame == models.FrameSuccess || frame == models.FrameIssue {
		return frameActionOutcome, nil
	}

	trimmed := bytes.TrimSpace([]byte(frame))
	if len(trimmed) == 0 {
		return frameIgnored, nil
	}

	var raw json.RawMessage

	switch trimmed[0] {
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return frameIgnored, nil
		}

		value, ok := fields[key]
		if !ok {
			return frameIgnored, nil
		}

		raw = value
	case '[':
		raw = trimmed
	default:
		return frameIgnored, nil
	}

	var snapshot models.TelemetrySnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return frameIgnored, nil
	}

	if snapshot == nil {
		snapshot = models.TelemetrySnapshot{}
	}

	return frameTelemetry, snapshot
}

// runRelay forwards outbox frames to the device and device frames to the
// control bus until the session is cancelled or the transport ends. The
// transport is always closed on return; if it ended on its own the outbox is
// closed too so later sends fail fast.
func (b *Bridge) runRelay(ctx context.Context, id string, conn Conn, outbox *Outbox) {
	log := b.logger.With().Str("server_id", id).Logger()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.writeLoop(gctx, conn, outbox)
	})

	g.Go(func() error {
		return b.readLoop(gctx, id, conn)
	})

	g.Go(func() error {
		<-gctx.Done()

		return conn.Close()
	})

	err := g.Wait()

	outbox.Close()

	switch {
	case ctx.Err() != nil:
		log.Debug().Msg("Relay stopped")
	case err != nil:
		log.Warn().Err(err).Msg("Device connection ended")
	default:
		log.Info().Msg("Device connection ended")
	}
}

func (b *Bridge) writeLoop(ctx context.Context, conn Conn, outbox *Outbox) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-outbox.Done():
			return nil
		case frame := <-outbox.Frames():
			if err := conn.WriteText(frame); err != nil {
				return fmt.Errorf("%w: write: %w", errTransportClosed, err)
			}
		}
	}
}

func (b *Bridge) readLoop(ctx context.Context, id string, conn Conn) error {
	for {
		frame, err := conn.ReadText()
		if errors.Is(err, ErrNonTextFrame) {
			recordFrame(ctx, frameIgnored)
			b.logger.Debug().Str("server_id", id).Err(err).Msg("Ignoring non-text device frame")

			continue
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("%w: read: %w", errTransportClosed, err)
		}

		b.handleFrame(ctx, id, frame)
	}
}

func (b *Bridge) handleFrame(ctx context.Context, id, frame string) {
	class, snapshot := classifyFrame(frame, b.cfg.TelemetryKey)
	recordFrame(ctx, class)

	switch class {
	case frameActionOutcome:
		_ = b.events.ActionResponse(ctx, id, frame)
		b.dispatcher.Complete(ctx, id)
	case frameTelemetry:
		_ = b.events.PassiveData(ctx, id, snapshot)
	case frameIgnored:
		b.logger.Trace().Str("server_id", id).Int("size", len(frame)).Msg("Ignoring device frame")
	}
}

// isSessionGone reports whether err means the session can no longer be written to.
func isSessionGone(err error) bool {
	return errors.Is(err, ErrOutboxClosed) || errors.Is(err, ErrSessionNotFound)
}
