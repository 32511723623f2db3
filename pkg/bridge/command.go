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
	"encoding/json"
	"fmt"

	"github.com/carverauto/hoibridge/pkg/models"
)

// Command is a decoded control bus request. The set of implementations is
// closed: ConnectCommand, DisconnectCommand, ActionCommand and IgnoredCommand.
type Command interface {
	isCommand()
}

// ConnectCommand asks the bridge to open and authenticate a session.
type ConnectCommand struct {
	Credentials models.Credentials
}

// DisconnectCommand asks the bridge to end a session.
type DisconnectCommand struct {
	ServerID string
}

// ActionCommand asks a session's device to perform an action.
type ActionCommand struct {
	Request models.ActionRequest
}

// IgnoredCommand is any category the bridge does not handle.
type IgnoredCommand struct {
	Category string
}

func (ConnectCommand) isCommand()    {}
func (DisconnectCommand) isCommand() {}
func (ActionCommand) isCommand()     {}
func (IgnoredCommand) isCommand()    {}

// DecodeCommand parses a control bus envelope and its category payload.
func DecodeCommand(raw []byte) (Command, error) {
	var msg models.GeneralMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	switch msg.Category {
	case models.CategoryConnect:
		var creds models.Credentials
		if err := json.Unmarshal([]byte(msg.Data), &creds); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, msg.Category, err)
		}

		return ConnectCommand{Credentials: creds}, nil
	case models.CategoryDisconnect:
		var data models.DisconnectData
		if msg.Data != "" {
			if err := json.Unmarshal([]byte(msg.Data), &data); err != nil && msg.ServerID == "" {
				return nil, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, msg.Category, err)
			}
		}

		if data.ServerID == "" {
			data.ServerID = msg.ServerID
		}

		if data.ServerID == "" {
			return nil, fmt.Errorf("%w: %s: missing server_id", ErrMalformedPayload, msg.Category)
		}

		return DisconnectCommand{ServerID: data.ServerID}, nil
	case models.CategoryAction:
		var req models.ActionRequest
		if err := json.Unmarshal([]byte(msg.Data), &req); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, msg.Category, err)
		}

		if req.ServerID == "" {
			req.ServerID = msg.ServerID
		}

		if req.ServerID == "" {
			return nil, fmt.Errorf("%w: %s: missing server_id", ErrMalformedPayload, msg.Category)
		}

		return ActionCommand{Request: req}, nil
	default:
		return IgnoredCommand{Category: msg.Category}, nil
	}
}
