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

	"github.com/carverauto/hoibridge/pkg/logger"
)

// Router turns control bus messages into bridge operations. It never blocks
// on a device: handshakes run in their own goroutines.
type Router struct {
	bridge *Bridge
	logger logger.Logger
}

// NewRouter creates a router for b.
func NewRouter(b *Bridge, log logger.Logger) *Router {
	return &Router{
		bridge: b,
		logger: log,
	}
}

// HandleMessage decodes and routes one control bus message. Messages that
// cannot be decoded are logged and otherwise ignored.
func (r *Router) HandleMessage(ctx context.Context, data []byte) {
	cmd, err := DecodeCommand(data)
	if err != nil {
		r.logger.Debug().Err(err).Msg("Discarding control bus message")

		return
	}

	r.Route(ctx, cmd)
}

// Route executes a decoded command.
func (r *Router) Route(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case ConnectCommand:
		r.logger.Debug().
			Str("outside_name", c.Credentials.OutsideName).
			Msg("Connecting to device server")

		r.bridge.ConnectAsync(ctx, c.Credentials)
	case DisconnectCommand:
		r.bridge.Disconnect(ctx, c.ServerID)
	case ActionCommand:
		r.bridge.Dispatcher().Enqueue(ctx, c.Request)
	case IgnoredCommand:
		r.logger.Debug().Str("category", c.Category).Msg("Ignoring control bus message")
	}
}
