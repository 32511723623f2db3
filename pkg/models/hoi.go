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

package models

// Control bus categories understood or produced by the bridge.
const (
	CategoryConnect        = "connect_hoi"
	CategoryDisconnect     = "disconnect_hoi"
	CategoryAction         = "action_hoi"
	CategoryActionResponse = "action_response"
	CategoryPassiveData    = "passive_data"
	CategoryDisconnected   = "disconnected"
)

// Device protocol literals.
const (
	FrameSuccess     = "success"
	FrameIssue       = "issue"
	FramePassiveData = "passive_data"
)

// Credentials are the connection details for a House of IoT server.
// The connection string is usually just the websocket location of the server.
type Credentials struct {
	ConnectionStr string `json:"connection_str"`
	NameAndType   string `json:"name_and_type"`
	Password      string `json:"password"`
	AdminPassword string `json:"admin_password"`
	OutsideName   string `json:"outside_name"`
}

// GeneralMessage is the envelope carried on the control bus in both directions.
// Data is itself an opaque JSON document whose shape depends on Category.
type GeneralMessage struct {
	Category string `json:"category"`
	Data     string `json:"data"`
	ServerID string `json:"server_id"`
}

// AuthResponse reports the outcome of a handshake with a House of IoT server.
type AuthResponse struct {
	OutsideName string  `json:"outside_name"`
	PassedAuth  bool    `json:"passed_auth"`
	ServerID    *string `json:"server_id"`
}

// ActionRequest asks a bot attached to a session to perform an action.
type ActionRequest struct {
	ServerID string `json:"server_id"`
	BotName  string `json:"bot_name"`
	Action   string `json:"action"`
}

// DeviceAction is the frame written to the device for a queued ActionRequest.
type DeviceAction struct {
	BotName string `json:"bot_name"`
	Action  string `json:"action"`
}

// TelemetryRecord is the passive data for one bot.
type TelemetryRecord struct {
	ActiveStatus bool   `json:"active_status"`
	DeviceName   string `json:"device_name"`
	DeviceType   string `json:"device_type"`
}

// TelemetrySnapshot is an ordered list of bot records reported by one server.
type TelemetrySnapshot []TelemetryRecord

// DisconnectData is the payload of a disconnect request.
type DisconnectData struct {
	ServerID string `json:"server_id"`
}
