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
	"fmt"
	"time"

	"github.com/carverauto/hoibridge/pkg/models"
)

// HandshakeState tracks a connect attempt.
type HandshakeState int

const (
	StateConnecting HandshakeState = iota
	StateAuthenticating
	StateAuthenticated
	StateRejected
)

func (s HandshakeState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// authenticate writes the password, name_and_type and outside_name frames,
// in that order, and waits until deadline for a single reply. Only a literal
// "success" text reply authenticates; any other reply, a binary frame, a
// closed stream or an expired deadline rejects.
func authenticate(conn Conn, creds models.Credentials, deadline time.Time) (HandshakeState, error) {
	frames := []string{creds.Password, creds.NameAndType, creds.OutsideName}

	for _, frame := range frames {
		if err := conn.WriteText(frame); err != nil {
			return StateRejected, fmt.Errorf("%w: %w", errHandshakeWrite, err)
		}
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return StateRejected, fmt.Errorf("failed to set handshake deadline: %w", err)
	}

	reply, err := conn.ReadText()
	if err != nil {
		return StateRejected, fmt.Errorf("waiting for handshake reply: %w", err)
	}

	if reply != models.FrameSuccess {
		return StateRejected, fmt.Errorf("unexpected handshake reply %q", reply)
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return StateRejected, fmt.Errorf("failed to clear handshake deadline: %w", err)
	}

	return StateAuthenticated, nil
}
