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

//go:generate mockgen -destination=mock_bridge.go -package=bridge github.com/carverauto/hoibridge/pkg/bridge Publisher,Dialer,Conn,Clock,Ticker

import (
	"context"
	"time"
)

// Publisher delivers an encoded event to the control bus.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// Dialer opens the transport to a device server.
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// Conn is a bidirectional text-frame connection to a device server.
// ReadText blocks until a frame arrives, the read deadline passes or the
// connection is closed. A binary frame is consumed and reported as
// ErrNonTextFrame; the connection stays usable. WriteText must be safe to
// call from one goroutine while another is reading.
type Conn interface {
	ReadText() (string, error)
	WriteText(frame string) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}
