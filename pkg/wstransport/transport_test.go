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

package wstransport

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/carverauto/hoibridge/pkg/bridge"
	"github.com/carverauto/hoibridge/pkg/logger"
	"github.com/carverauto/hoibridge/pkg/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// newDeviceServer starts a websocket server that hands each connection to handle.
func newDeviceServer(t *testing.T, handle func(ws *websocket.Conn)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		handle(ws)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnReadWrite(t *testing.T) {
	address := newDeviceServer(t, func(ws *websocket.Conn) {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		_ = ws.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02})
		_ = ws.WriteMessage(websocket.TextMessage, append([]byte("echo:"), data...))

		_, _, _ = ws.ReadMessage()
	})

	conn, err := NewDialer(time.Second, time.Second).Dial(context.Background(), address)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteText("ping"))

	_, err = conn.ReadText()
	require.ErrorIs(t, err, bridge.ErrNonTextFrame)

	frame, err := conn.ReadText()
	require.NoError(t, err)
	assert.Equal(t, "echo:ping", frame, "a binary frame does not break the connection")

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
}

func TestConnReadDeadline(t *testing.T) {
	address := newDeviceServer(t, func(ws *websocket.Conn) {
		_, _, _ = ws.ReadMessage()
	})

	conn, err := NewDialer(time.Second, time.Second).Dial(context.Background(), address)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(50*time.Millisecond)))

	_, err = conn.ReadText()
	require.Error(t, err)

	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestDialFailures(t *testing.T) {
	dialer := NewDialer(200*time.Millisecond, 0)

	_, err := dialer.Dial(context.Background(), "")
	require.ErrorIs(t, err, errEmptyAddress)

	_, err = dialer.Dial(context.Background(), "ws://127.0.0.1:1")
	require.Error(t, err)

	notWebsocket := httptest.NewServer(http.NotFoundHandler())
	defer notWebsocket.Close()

	_, err = dialer.Dial(context.Background(), "ws"+strings.TrimPrefix(notWebsocket.URL, "http"))
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
}

type capturePublisher struct {
	mu     sync.Mutex
	events chan capturedEvent
}

type capturedEvent struct {
	subject string
	payload []byte
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{events: make(chan capturedEvent, 256)}
}

func (p *capturePublisher) Publish(_ context.Context, subject string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case p.events <- capturedEvent{subject: subject, payload: payload}:
	default:
	}

	return nil
}

func (p *capturePublisher) next(t *testing.T, subject string) capturedEvent {
	t.Helper()

	deadline := time.After(waitTimeout)

	for {
		select {
		case ev := <-p.events:
			if ev.subject == subject {
				return ev
			}
		case <-deadline:
			t.Fatalf("no event published on %s", subject)

			return capturedEvent{}
		}
	}
}

// fakeDevice behaves like a House of IoT server: it checks the handshake,
// then answers telemetry polls and actions.
func fakeDevice(handshake chan<- []string, reply string) func(ws *websocket.Conn) {
	return func(ws *websocket.Conn) {
		frames := make([]string, 0, 3)

		for range 3 {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}

			frames = append(frames, string(data))
		}

		handshake <- frames

		if err := ws.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}

			var out string

			switch string(data) {
			case models.FramePassiveData:
				out = `{"passive_data":[{"active_status":true,"device_name":"lamp","device_type":"light"}]}`
			default:
				out = models.FrameSuccess
			}

			if err := ws.WriteMessage(websocket.TextMessage, []byte(out)); err != nil {
				return
			}
		}
	}
}

func TestBridgeOverWebsocket(t *testing.T) {
	handshake := make(chan []string, 1)
	address := newDeviceServer(t, fakeDevice(handshake, models.FrameSuccess))
	publisher := newCapturePublisher()

	b := bridge.New(bridge.Config{
		PollInterval:     20 * time.Millisecond,
		HandshakeTimeout: time.Second,
	}, NewDialer(time.Second, time.Second), publisher, logger.NewTestLogger())

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()

		require.NoError(t, b.Close(ctx))
	}()

	result, err := b.Connect(context.Background(), models.Credentials{
		ConnectionStr: address,
		NameAndType:   "bot1:lamp",
		Password:      "p1",
		OutsideName:   "kitchen",
	})
	require.NoError(t, err)
	require.Equal(t, bridge.StateAuthenticated, result.State)

	assert.Equal(t, []string{"p1", "bot1:lamp", "kitchen"}, <-handshake)

	auth := publisher.next(t, "hoi.events.auth")

	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(auth.payload, &resp))
	assert.True(t, resp.PassedAuth)
	require.NotNil(t, resp.ServerID)
	assert.Equal(t, result.ServerID, *resp.ServerID)

	telemetry := publisher.next(t, "hoi.events.passive_data")

	var msg models.GeneralMessage
	require.NoError(t, json.Unmarshal(telemetry.payload, &msg))
	assert.Equal(t, result.ServerID, msg.ServerID)
	assert.JSONEq(t, `[{"active_status":true,"device_name":"lamp","device_type":"light"}]`, msg.Data)

	require.True(t, b.Dispatcher().Enqueue(context.Background(), models.ActionRequest{
		ServerID: result.ServerID,
		BotName:  "lamp",
		Action:   "on",
	}))

	response := publisher.next(t, "hoi.events.action_response")
	require.NoError(t, json.Unmarshal(response.payload, &msg))
	assert.Equal(t, models.FrameSuccess, msg.Data)

	require.True(t, b.Disconnect(context.Background(), result.ServerID))
	publisher.next(t, "hoi.events.disconnected")
}

func TestBridgeOverWebsocketRejected(t *testing.T) {
	handshake := make(chan []string, 1)
	address := newDeviceServer(t, fakeDevice(handshake, "wrong password"))
	publisher := newCapturePublisher()

	b := bridge.New(bridge.Config{HandshakeTimeout: time.Second}, NewDialer(time.Second, time.Second), publisher, logger.NewTestLogger())

	result, err := b.Connect(context.Background(), models.Credentials{
		ConnectionStr: address,
		NameAndType:   "bot1:lamp",
		Password:      "bad",
		OutsideName:   "kitchen",
	})
	require.NoError(t, err)
	assert.Equal(t, bridge.StateRejected, result.State)

	auth := publisher.next(t, "hoi.events.auth")
	assert.JSONEq(t, `{"outside_name":"kitchen","passed_auth":false,"server_id":null}`, string(auth.payload))
	assert.Equal(t, 0, b.Registry().Len())
}

func TestBridgeOverWebsocketRejectsBinaryReply(t *testing.T) {
	address := newDeviceServer(t, func(ws *websocket.Conn) {
		for range 3 {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}

		_ = ws.WriteMessage(websocket.BinaryMessage, []byte("nope"))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(models.FrameSuccess))

		_, _, _ = ws.ReadMessage()
	})
	publisher := newCapturePublisher()

	b := bridge.New(bridge.Config{HandshakeTimeout: time.Second}, NewDialer(time.Second, time.Second), publisher, logger.NewTestLogger())

	result, err := b.Connect(context.Background(), models.Credentials{
		ConnectionStr: address,
		NameAndType:   "bot1:lamp",
		Password:      "p1",
		OutsideName:   "kitchen",
	})
	require.NoError(t, err)
	assert.Equal(t, bridge.StateRejected, result.State)
	assert.Empty(t, result.ServerID)

	auth := publisher.next(t, "hoi.events.auth")
	assert.JSONEq(t, `{"outside_name":"kitchen","passed_auth":false,"server_id":null}`, string(auth.payload))
	assert.Equal(t, 0, b.Registry().Len())
}

func TestDialerHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	address := newDeviceServer(t, func(*websocket.Conn) {})

	_, err := NewDialer(time.Second, time.Second).Dial(ctx, address)
	require.Error(t, err)
}
