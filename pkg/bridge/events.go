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

const authSubjectSuffix = "auth"

// Events formats outbound bridge events and hands them to the publisher.
// Publish failures are logged and returned; callers treat them as
// non-fatal.
type Events struct {
	publisher Publisher
	prefix    string
	logger    logger.Logger
}

// NewEvents creates an emitter publishing under prefix.
func NewEvents(publisher Publisher, prefix string, log logger.Logger) *Events {
	return &Events{
		publisher: publisher,
		prefix:    prefix,
		logger:    log,
	}
}

// Subject returns the subject events of the given category are published to.
func (e *Events) Subject(category string) string {
	if e.prefix == "" {
		return category
	}

	return e.prefix + "." + category
}

// AuthResult publishes the outcome of a handshake. The session id is only
// set for successful handshakes.
func (e *Events) AuthResult(ctx context.Context, outsideName string, passed bool, serverID string) error {
	resp := models.AuthResponse{
		OutsideName: outsideName,
		PassedAuth:  passed,
	}

	if passed {
		resp.ServerID = &serverID
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal auth response: %w", err)
	}

	return e.publish(ctx, e.Subject(authSubjectSuffix), payload)
}

// ActionResponse publishes the device's answer to an action.
func (e *Events) ActionResponse(ctx context.Context, serverID, outcome string) error {
	return e.general(ctx, models.CategoryActionResponse, outcome, serverID)
}

// PassiveData publishes a telemetry snapshot as a JSON array.
func (e *Events) PassiveData(ctx context.Context, serverID string, snapshot models.TelemetrySnapshot) error {
	if snapshot == nil {
		snapshot = models.TelemetrySnapshot{}
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry snapshot: %w", err)
	}

	return e.general(ctx, models.CategoryPassiveData, string(data), serverID)
}

// Disconnected publishes the end of a session.
func (e *Events) Disconnected(ctx context.Context, serverID string) error {
	return e.general(ctx, models.CategoryDisconnected, "", serverID)
}

func (e *Events) general(ctx context.Context, category, data, serverID string) error {
	payload, err := json.Marshal(models.GeneralMessage{
		Category: category,
		Data:     data,
		ServerID: serverID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", category, err)
	}

	return e.publish(ctx, e.Subject(category), payload)
}

func (e *Events) publish(ctx context.Context, subject string, payload []byte) error {
	if err := e.publisher.Publish(ctx, subject, payload); err != nil {
		e.logger.Warn().
			Err(err).
			Str("subject", subject).
			Msg("Failed to publish bridge event")

		return fmt.Errorf("publish %s: %w", subject, err)
	}

	return nil
}
