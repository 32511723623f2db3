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
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/carverauto/hoibridge/pkg/logger"
	"github.com/carverauto/hoibridge/pkg/models"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

var errWriteFailed = errors.New("write failed")

// binaryFrame pushed on fakeConn.incoming is read back as ErrNonTextFrame.
const binaryFrame = "\x00binary"

// fakeConn is an in-memory Conn. Frames pushed on incoming are returned by
// ReadText; closing incoming simulates the device closing the stream.
type fakeConn struct {
	mu       sync.Mutex
	deadline time.Time
	written  []string
	writeErr error

	incoming  chan string
	writes    chan string
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn(replies ...string) *fakeConn {
	c := &fakeConn{
		incoming: make(chan string, 64),
		writes:   make(chan string, 64),
		closed:   make(chan struct{}),
	}

	for _, reply := range replies {
		c.incoming <- reply
	}

	return c
}

func (c *fakeConn) ReadText() (string, error) {
	c.mu.Lock()
	deadline := c.deadline
	c.mu.Unlock()

	var timeout <-chan time.Time

	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()

		timeout = timer.C
	}

	select {
	case frame, ok := <-c.incoming:
		if !ok {
			return "", io.EOF
		}

		if frame == binaryFrame {
			return "", ErrNonTextFrame
		}

		return frame, nil
	case <-c.closed:
		return "", net.ErrClosed
	case <-timeout:
		return "", os.ErrDeadlineExceeded
	}
}

func (c *fakeConn) WriteText(frame string) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeErr != nil {
		return c.writeErr
	}

	c.written = append(c.written, frame)

	select {
	case c.writes <- frame:
	default:
	}

	return nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deadline = t

	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})

	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) writtenFrames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.written...)
}

// nextWrite returns the next frame written to the device.
func (c *fakeConn) nextWrite(t *testing.T) string {
	t.Helper()

	select {
	case frame := <-c.writes:
		return frame
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a frame to be written")

		return ""
	}
}

type published struct {
	subject string
	payload []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	ch   chan published
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{ch: make(chan published, 128)}
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, payload []byte) error {
	msg := published{subject: subject, payload: append([]byte(nil), payload...)}

	p.mu.Lock()
	p.msgs = append(p.msgs, msg)
	p.mu.Unlock()

	p.ch <- msg

	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.msgs)
}

func (p *recordingPublisher) next(t *testing.T) published {
	t.Helper()

	select {
	case msg := <-p.ch:
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a published event")

		return published{}
	}
}

// nextGeneral returns the next event, decoded as a GeneralMessage.
func (p *recordingPublisher) nextGeneral(t *testing.T) (string, models.GeneralMessage) {
	t.Helper()

	msg := p.next(t)

	var general models.GeneralMessage
	require.NoError(t, json.Unmarshal(msg.payload, &general))

	return msg.subject, general
}

func testCredentials(address string) models.Credentials {
	return models.Credentials{
		ConnectionStr: address,
		NameAndType:   "bot1:lamp",
		Password:      "p1",
		AdminPassword: "admin",
		OutsideName:   "kitchen",
	}
}

func newTestBridge(dialer Dialer, publisher Publisher, opts ...Option) *Bridge {
	return New(Config{PollInterval: time.Hour, HandshakeTimeout: time.Second}, dialer, publisher, logger.NewTestLogger(), opts...)
}

func closeBridge(t *testing.T, b *Bridge) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	require.NoError(t, b.Close(ctx))
}

func readFrame(t *testing.T, outbox *Outbox) string {
	t.Helper()

	select {
	case frame := <-outbox.Frames():
		return frame
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for an outbox frame")

		return ""
	}
}
