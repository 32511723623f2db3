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

	"github.com/carverauto/hoibridge/pkg/models"
)

// runPassivePoller asks the device for telemetry on every tick. It stops
// when the session context ends or the session can no longer be written to.
func (b *Bridge) runPassivePoller(ctx context.Context, id string) {
	ticker := b.clock.Ticker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := b.requestTelemetry(ctx, id); err != nil {
				if ctx.Err() == nil && !isSessionGone(err) {
					b.logger.Warn().Err(err).Str("server_id", id).Msg("Passive poll failed")
				}

				return
			}
		}
	}
}

func (b *Bridge) requestTelemetry(ctx context.Context, id string) error {
	outbox, ok := b.registry.Lookup(id)
	if !ok {
		return ErrSessionNotFound
	}

	return outbox.Send(ctx, models.FramePassiveData)
}
