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

// Package wstransport carries device server traffic over websocket text frames.
package wstransport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/hoibridge/pkg/bridge"
	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	closeGracePeriod        = time.Second
)

var errEmptyAddress = errors.New("device server address is empty")

// Dialer opens websocket connections to device servers.
type Dialer struct {
	dialer       *websocket.Dialer
	writeTimeout time.Duration
}

// NewDialer creates a Dialer. Zero durations fall back to defaults.
func NewDialer(handshakeTimeout, writeTimeout time.Duration) *Dialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}

	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	return &Dialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		writeTimeout: writeTimeout,
	}
}

// Dial connects to a ws:// or wss:// address.
func (d *Dialer) Dial(ctx context.Context, address string) (bridge.Conn, error) {
	if address == "" {
		return nil, errEmptyAddress
	}

	ws, resp, err := d.dialer.DialContext(ctx, address, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", address, err, resp.StatusCode)
		}

		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	return NewConn(ws, d.writeTimeout), nil
}

// Conn adapts a websocket connection to bridge.Conn.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closeOnce    sync.Once
	closeErr     error
}

// NewConn wraps an established websocket connection.
func NewConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{
		ws:           ws,
		writeTimeout: writeTimeout,
	}
}

// ReadText returns the next frame. A binary frame yields bridge.ErrNonTextFrame.
func (c *Conn) ReadText() (string, error) {
	kind, data, err := c.ws.ReadMessage()
	if err != nil {
		return "", err
	}

	if kind != websocket.TextMessage {
		return "", fmt.Errorf("%w: %d bytes", bridge.ErrNonTextFrame, len(data))
	}

	return string(data), nil
}

// WriteText sends frame as a single text message.
func (c *Conn) WriteText(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}

	return c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}

// SetReadDeadline bounds the next ReadText. The zero time clears it.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// Close sends a normal closure frame and closes the connection.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)

		c.closeErr = c.ws.Close()
	})

	return c.closeErr
}
