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

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/hoibridge/pkg/logger"
	"github.com/carverauto/hoibridge/pkg/models"
)

const eventTimeout = 5 * time.Second

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}

	t.Cleanup(srv.Shutdown)

	return srv
}

// startDevice runs a House of IoT server that accepts password p1.
func startDevice(t *testing.T) string {
	t.Helper()

	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		var password string

		for i := range 3 {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}

			if i == 0 {
				password = string(data)
			}
		}

		reply := "failure"
		if password == "p1" {
			reply = models.FrameSuccess
		}

		if err := ws.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil || reply != models.FrameSuccess {
			return
		}

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}

			out := models.FrameSuccess
			if string(data) == models.FramePassiveData {
				out = `{"passive_data":[{"active_status":true,"device_name":"lamp","device_type":"light"}]}`
			}

			if err := ws.WriteMessage(websocket.TextMessage, []byte(out)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func command(t *testing.T, category, data, serverID string) []byte {
	t.Helper()

	payload, err := json.Marshal(models.GeneralMessage{Category: category, Data: data, ServerID: serverID})
	require.NoError(t, err)

	return payload
}

func nextEvent(t *testing.T, sub *nats.Subscription, subject string) *nats.Msg {
	t.Helper()

	deadline := time.Now().Add(eventTimeout)

	for time.Now().Before(deadline) {
		msg, err := sub.NextMsg(time.Until(deadline))
		if err != nil {
			break
		}

		if msg.Subject == subject {
			return msg
		}
	}

	t.Fatalf("no event on %s", subject)

	return nil
}

func TestServiceBridgesCommandsAndEvents(t *testing.T) {
	srv := runJetStreamServer(t)
	device := startDevice(t)

	cfg := &Config{
		NATSURL:          srv.ClientURL(),
		PollInterval:     models.Duration(50 * time.Millisecond),
		HandshakeTimeout: models.Duration(2 * time.Second),
	}

	svc, err := NewService(cfg, logger.NewTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, svc.Start(ctx))
	require.ErrorIs(t, svc.Start(ctx), errAlreadyStarted)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	events, err := nc.SubscribeSync("hoi.events.>")
	require.NoError(t, err)

	js, err := nc.JetStream()
	require.NoError(t, err)

	creds, err := json.Marshal(models.Credentials{
		ConnectionStr: device,
		NameAndType:   "bot1:lamp",
		Password:      "p1",
		OutsideName:   "kitchen",
	})
	require.NoError(t, err)

	_, err = js.Publish("hoi.commands", command(t, models.CategoryConnect, string(creds), ""))
	require.NoError(t, err)

	authMsg := nextEvent(t, events, "hoi.events.auth")

	var auth models.AuthResponse
	require.NoError(t, json.Unmarshal(authMsg.Data, &auth))
	require.True(t, auth.PassedAuth)
	require.NotNil(t, auth.ServerID)
	assert.Equal(t, "kitchen", auth.OutsideName)

	serverID := *auth.ServerID
	assert.Equal(t, 1, svc.Sessions())

	var msg models.GeneralMessage

	require.NoError(t, json.Unmarshal(nextEvent(t, events, "hoi.events.passive_data").Data, &msg))
	assert.Equal(t, serverID, msg.ServerID)
	assert.JSONEq(t, `[{"active_status":true,"device_name":"lamp","device_type":"light"}]`, msg.Data)

	action, err := json.Marshal(models.ActionRequest{ServerID: serverID, BotName: "lamp", Action: "on"})
	require.NoError(t, err)

	_, err = js.Publish("hoi.commands", command(t, models.CategoryAction, string(action), ""))
	require.NoError(t, err)

	require.NoError(t, json.Unmarshal(nextEvent(t, events, "hoi.events.action_response").Data, &msg))
	assert.Equal(t, models.GeneralMessage{Category: models.CategoryActionResponse, Data: models.FrameSuccess, ServerID: serverID}, msg)

	_, err = js.Publish("hoi.commands", []byte("garbage"))
	require.NoError(t, err)

	_, err = js.Publish("hoi.commands", command(t, models.CategoryDisconnect, `{"server_id":"`+serverID+`"}`, ""))
	require.NoError(t, err)

	require.NoError(t, json.Unmarshal(nextEvent(t, events, "hoi.events.disconnected").Data, &msg))
	assert.Equal(t, serverID, msg.ServerID)

	require.Eventually(t, func() bool { return svc.Sessions() == 0 }, eventTimeout, 20*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), eventTimeout)
	defer stopCancel()

	require.NoError(t, svc.Stop(stopCtx))
	require.NoError(t, svc.Stop(stopCtx))
}

func TestServiceReportsRejectedHandshake(t *testing.T) {
	srv := runJetStreamServer(t)
	device := startDevice(t)

	svc, err := NewService(&Config{NATSURL: srv.ClientURL()}, logger.NewTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, svc.Start(ctx))

	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), eventTimeout)
		defer stopCancel()

		require.NoError(t, svc.Stop(stopCtx))
	}()

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	events, err := nc.SubscribeSync("hoi.events.>")
	require.NoError(t, err)

	js, err := nc.JetStream()
	require.NoError(t, err)

	creds, err := json.Marshal(models.Credentials{ConnectionStr: device, Password: "wrong", OutsideName: "garage"})
	require.NoError(t, err)

	_, err = js.Publish("hoi.commands", command(t, models.CategoryConnect, string(creds), ""))
	require.NoError(t, err)

	msg := nextEvent(t, events, "hoi.events.auth")
	assert.JSONEq(t, `{"outside_name":"garage","passed_auth":false,"server_id":null}`, string(msg.Data))
	assert.Equal(t, 0, svc.Sessions())
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	_, err := NewService(&Config{}, logger.NewTestLogger())
	require.ErrorIs(t, err, ErrMissingNATSURL)
}
