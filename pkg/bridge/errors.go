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

import "errors"

var (
	// ErrOutboxClosed is returned when sending to a session that has ended.
	ErrOutboxClosed = errors.New("session outbox closed")
	// ErrSessionNotFound is returned when a session id is not registered.
	ErrSessionNotFound = errors.New("session not found")
	// ErrDial is returned when the device transport cannot be opened.
	ErrDial = errors.New("failed to connect to device server")
	// ErrNonTextFrame is returned by Conn.ReadText when the device sends a non-text data frame.
	ErrNonTextFrame = errors.New("non-text frame")
	// ErrMalformedMessage is returned for control bus messages that are not a valid envelope.
	ErrMalformedMessage = errors.New("malformed control bus message")
	// ErrMalformedPayload is returned when the data of a recognized category cannot be decoded.
	ErrMalformedPayload = errors.New("malformed message payload")

	errTransportClosed = errors.New("device transport closed")
	errHandshakeWrite  = errors.New("failed to send handshake frame")
)
