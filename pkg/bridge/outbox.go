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
	"sync"
)

// Outbox is the outbound handle of a session: frames sent here are written
// to the device by the session's relay loop. Once closed, every Send fails
// with ErrOutboxClosed; the frame channel itself is never closed so a racing
// Send cannot panic.
type Outbox struct {
	frames chan string
	done   chan struct{}
	once   sync.Once
}

// NewOutbox creates an outbox buffering up to size frames.
func NewOutbox(size int) *Outbox {
	if size < 0 {
		size = 0
	}

	return &Outbox{
		frames: make(chan string, size),
		done:   make(chan struct{}),
	}
}

// Send queues frame for the device, blocking while the buffer is full.
func (o *Outbox) Send(ctx context.Context, frame string) error {
	select {
	case <-o.done:
		return ErrOutboxClosed
	default:
	}

	select {
	case o.frames <- frame:
		return nil
	case <-o.done:
		return ErrOutboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the outbox closed. It is safe to call more than once.
func (o *Outbox) Close() {
	o.once.Do(func() {
		close(o.done)
	})
}

// Done is closed once the outbox is closed.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

// Frames exposes queued frames to the relay writer.
func (o *Outbox) Frames() <-chan string {
	return o.frames
}
