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
	"os"
	"testing"
	"time"

	"github.com/carverauto/hoibridge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAuthenticateSendsFramesInOrder(t *testing.T) {
	conn := newFakeConn(models.FrameSuccess)

	state, err := authenticate(conn, testCredentials("ws://device"), time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, state)
	assert.Equal(t, []string{"p1", "bot1:lamp", "kitchen"}, conn.writtenFrames())

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.True(t, conn.deadline.IsZero(), "deadline is cleared after the handshake")
}

func TestAuthenticateRejects(t *testing.T) {
	tests := []struct {
		name    string
		conn    func() *fakeConn
		wantErr error
	}{
		{
			name: "wrong reply",
			conn: func() *fakeConn { return newFakeConn("denied") },
		},
		{
			name: "reply is case sensitive",
			conn: func() *fakeConn { return newFakeConn("Success") },
		},
		{
			name:    "binary reply before success",
			conn:    func() *fakeConn { return newFakeConn(binaryFrame, models.FrameSuccess) },
			wantErr: ErrNonTextFrame,
		},
		{
			name: "stream ends",
			conn: func() *fakeConn {
				c := newFakeConn()
				close(c.incoming)

				return c
			},
			wantErr: io.EOF,
		},
		{
			name:    "no reply before deadline",
			conn:    func() *fakeConn { return newFakeConn() },
			wantErr: os.ErrDeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := authenticate(tt.conn(), testCredentials("ws://device"), time.Now().Add(50*time.Millisecond))
			assert.Equal(t, StateRejected, state)
			require.Error(t, err)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestAuthenticateWriteFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := NewMockConn(ctrl)

	conn.EXPECT().WriteText("p1").Return(errWriteFailed)

	state, err := authenticate(conn, testCredentials("ws://device"), time.Now().Add(time.Second))
	assert.Equal(t, StateRejected, state)
	assert.ErrorIs(t, err, errWriteFailed)
}

func TestHandshakeStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "authenticating", StateAuthenticating.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "rejected", StateRejected.String())
	assert.Equal(t, "unknown(9)", HandshakeState(9).String())
}

func TestBridgeConnectAuthenticated(t *testing.T) {
	ctrl := gomock.NewController(t)
	dialer := NewMockDialer(ctrl)
	conn := newFakeConn(models.FrameSuccess)
	publisher := newRecordingPublisher()

	dialer.EXPECT().Dial(gomock.Any(), "ws://device").Return(conn, nil)

	b := newTestBridge(dialer, publisher)
	defer closeBridge(t, b)

	result, err := b.Connect(context.Background(), testCredentials("ws://device"))
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, result.State)
	require.NotEmpty(t, result.ServerID)

	msg := publisher.next(t)
	assert.Equal(t, "hoi.events.auth", msg.subject)

	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(msg.payload, &resp))
	assert.Equal(t, "kitchen", resp.OutsideName)
	assert.True(t, resp.PassedAuth)
	require.NotNil(t, resp.ServerID)
	assert.Equal(t, result.ServerID, *resp.ServerID)

	_, ok := b.Registry().Lookup(result.ServerID)
	assert.True(t, ok)
	assert.Equal(t, []string{"p1", "bot1:lamp", "kitchen"}, conn.writtenFrames())
}

func TestBridgeConnectRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	dialer := NewMockDialer(ctrl)
	conn := newFakeConn("denied")
	publisher := newRecordingPublisher()

	dialer.EXPECT().Dial(gomock.Any(), "ws://device").Return(conn, nil)

	b := newTestBridge(dialer, publisher)
	defer closeBridge(t, b)

	result, err := b.Connect(context.Background(), testCredentials("ws://device"))
	require.NoError(t, err)
	assert.Equal(t, StateRejected, result.State)
	assert.Empty(t, result.ServerID)

	msg := publisher.next(t)
	assert.Equal(t, "hoi.events.auth", msg.subject)
	assert.JSONEq(t, `{"outside_name":"kitchen","passed_auth":false,"server_id":null}`, string(msg.payload))

	assert.Equal(t, 0, b.Registry().Len())
	assert.True(t, conn.isClosed())
}

func TestBridgeConnectDialFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	dialer := NewMockDialer(ctrl)
	publisher := NewMockPublisher(ctrl)

	dialer.EXPECT().Dial(gomock.Any(), "ws://unreachable").Return(nil, errors.New("connection refused"))

	b := newTestBridge(dialer, publisher)
	defer closeBridge(t, b)

	result, err := b.Connect(context.Background(), testCredentials("ws://unreachable"))
	require.ErrorIs(t, err, ErrDial)
	assert.Equal(t, StateConnecting, result.State)
	assert.Equal(t, 0, b.Registry().Len())
}

func TestBridgeConnectAfterCloseDropsSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	dialer := NewMockDialer(ctrl)
	conn := newFakeConn(models.FrameSuccess)
	publisher := newRecordingPublisher()

	dialer.EXPECT().Dial(gomock.Any(), "ws://device").Return(conn, nil)

	b := newTestBridge(dialer, publisher)
	closeBridge(t, b)

	result, err := b.Connect(context.Background(), testCredentials("ws://device"))
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, result.State)
	assert.Equal(t, 0, b.Registry().Len())
	assert.True(t, conn.isClosed())
}
