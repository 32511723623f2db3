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
	"encoding/json"
	"fmt"

	"github.com/carverauto/hoibridge/pkg/logger"
	"github.com/carverauto/hoibridge/pkg/models"
)

// Dispatcher feeds queued actions to a session one at a time. The next
// action is only sent once the device has answered the previous one.
type Dispatcher struct {
	registry *Registry
	events   *Events
	logger   logger.Logger
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, events *Events, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		events:   events,
		logger:   log,
	}
}

// Enqueue queues req for its session and drains. It reports false when the
// session is not registered and the request was dropped.
func (d *Dispatcher) Enqueue(ctx context.Context, req models.ActionRequest) bool {
	if !d.registry.EnqueueAction(req.ServerID, req) {
		d.logger.Debug().
			Str("server_id", req.ServerID).
			Str("bot_name", req.BotName).
			Msg("Dropping action for unknown session")

		return false
	}

	d.Drain(ctx, req.ServerID)

	return true
}

// Drain sends the next queued action unless one is already in flight. An
// action that cannot be written is answered with an issue on the bus and the
// following one is tried.
func (d *Dispatcher) Drain(ctx context.Context, id string) {
	for {
		req, ok := d.registry.NextAction(id)
		if !ok {
			return
		}

		err := d.send(ctx, id, req)
		if err == nil {
			recordActionSent(ctx, "sent")

			return
		}

		recordActionSent(ctx, "failed")
		d.logger.Warn().
			Err(err).
			Str("server_id", id).
			Str("bot_name", req.BotName).
			Msg("Failed to send action to device")

		d.registry.CompleteAction(id)

		_ = d.events.ActionResponse(ctx, id, models.FrameIssue)
	}
}

// Complete records that the device answered the in-flight action and sends
// the next one.
func (d *Dispatcher) Complete(ctx context.Context, id string) {
	d.registry.CompleteAction(id)
	d.Drain(ctx, id)
}

func (d *Dispatcher) send(ctx context.Context, id string, req models.ActionRequest) error {
	outbox, ok := d.registry.Lookup(id)
	if !ok {
		return ErrSessionNotFound
	}

	frame, err := json.Marshal(models.DeviceAction{
		BotName: req.BotName,
		Action:  req.Action,
	})
	if err != nil {
		return fmt.Errorf("failed to encode action: %w", err)
	}

	return outbox.Send(ctx, string(frame))
}
