// Package wire defines the JSON message taxonomies exchanged on the glasses
// and TPA WebSocket channels (spec.md §6), and the envelope used to decode a
// message by its "type" discriminant before dispatching to a typed handler.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/augmentos-org/cloud-core/internal/apperrors"
)

// Envelope is the common shape of every JSON message: a type discriminant
// plus the rest of the payload, decoded lazily into a concrete type once the
// discriminant is known.
type Envelope struct {
	Type string `json:"type"`
}

// Decode parses the type discriminant from raw and returns it together with
// raw itself. Callers unmarshal the returned message into the concrete type
// below that matches the returned type string.
func Decode(raw []byte) (string, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, apperrors.ProtocolError(fmt.Sprintf("decode envelope: %v", err))
	}
	if env.Type == "" {
		return "", nil, apperrors.ProtocolError("missing type discriminant")
	}
	return env.Type, json.RawMessage(raw), nil
}

// Glasses → Cloud message type discriminants.
const (
	TypeConnectionInit          = "connection_init"
	TypeStartApp                = "start_app"
	TypeStopApp                 = "stop_app"
	TypeGlassesConnectionState  = "glasses_connection_state"
	TypeVAD                     = "vad"
	TypeLocationUpdate          = "location_update"
	TypeCalendarEvent           = "calendar_event"
	TypeHeadPosition            = "head_position"
	TypeButtonPress             = "button_press"
	TypePhoneNotification       = "phone_notification"
	TypeNotificationDismissed   = "notification_dismissed"
	TypeGlassesBatteryUpdate    = "glasses_battery_update"
	TypePhoneBatteryUpdate      = "phone_battery_update"
)

// Cloud → Glasses message type discriminants.
const (
	TypeConnectionAck        = "connection_ack"
	TypeConnectionError      = "connection_error"
	TypeAuthError            = "auth_error"
	TypeAppStateChange       = "app_state_change"
	TypeDisplayEvent         = "display_event"
	TypeMicrophoneStateChange = "microphone_state_change"
)

// TPA → Cloud message type discriminants.
const (
	TypeTPAConnectionInit  = "tpa_connection_init"
	TypeSubscriptionUpdate = "subscription_update"
	TypeTPADisplayEvent    = "display_event"
)

// Cloud → TPA message type discriminants.
const (
	TypeTPAConnectionAck   = "tpa_connection_ack"
	TypeTPAConnectionError = "tpa_connection_error"
	TypeAppStopped         = "app_stopped"
	TypeSettingsUpdate     = "settings_update"
	TypeDataStream         = "data_stream"
	TypeCommandActivate    = "command_activate"
)

// ── Glasses → Cloud payloads ────────────────────────────────────────────────

// ConnectionInit carries no fields beyond the discriminant; the bearer token
// and userId are established at the WebSocket upgrade, not in this frame.
type ConnectionInit struct {
	Type string `json:"type"`
}

type StartApp struct {
	Type        string `json:"type"`
	PackageName string `json:"packageName"`
	SessionID   string `json:"sessionId"`
}

type StopApp struct {
	Type        string `json:"type"`
	PackageName string `json:"packageName"`
	SessionID   string `json:"sessionId"`
}

type GlassesConnectionState struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	ModelName string `json:"modelName,omitempty"`
}

// VAD carries the client-side VAD gate's status. Status is accepted as a
// JSON bool or the strings "true"/"false" — some glasses firmware sends the
// stringly-typed form.
type VAD struct {
	Type   string          `json:"type"`
	Status json.RawMessage `json:"status"`
}

// Bool normalizes Status into a Go bool, accepting true/false or "true"/"false".
func (v VAD) Bool() (bool, error) {
	var b bool
	if err := json.Unmarshal(v.Status, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(v.Status, &s); err == nil {
		switch s {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, apperrors.ProtocolError("vad.status must be a bool or \"true\"/\"false\"")
}

type LocationUpdate struct {
	Type      string  `json:"type"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp int64   `json:"timestamp"`
}

type CalendarEvent struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}

type HeadPosition struct {
	Type     string `json:"type"`
	Position string `json:"position"`
}

type ButtonPress struct {
	Type      string `json:"type"`
	ButtonID  string `json:"buttonId"`
	PressType string `json:"pressType"`
}

type PhoneNotification struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type NotificationDismissed struct {
	Type           string `json:"type"`
	NotificationID string `json:"notificationId"`
}

type GlassesBatteryUpdate struct {
	Type    string `json:"type"`
	Level   int    `json:"level"`
	Charging bool  `json:"charging"`
}

type PhoneBatteryUpdate struct {
	Type     string `json:"type"`
	Level    int    `json:"level"`
	Charging bool   `json:"charging"`
}

// ── Cloud → Glasses payloads ────────────────────────────────────────────────

type ConnectionAck struct {
	Type        string      `json:"type"`
	SessionID   string      `json:"sessionId"`
	UserSession interface{} `json:"userSession"`
	Timestamp   int64       `json:"timestamp"`
}

type ConnectionError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type AuthError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type AppStateChange struct {
	Type        string      `json:"type"`
	SessionID   string      `json:"sessionId"`
	UserSession interface{} `json:"userSession"`
}

type DisplayEvent struct {
	Type        string `json:"type"`
	View        string `json:"view"`
	Layout      any    `json:"layout"`
	DurationMs  *int   `json:"durationMs,omitempty"`
	PackageName string `json:"packageName,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
}

type MicrophoneStateChange struct {
	Type                  string `json:"type"`
	IsMicrophoneEnabled   bool   `json:"isMicrophoneEnabled"`
}

// ── TPA → Cloud payloads ─────────────────────────────────────────────────────

type TPAConnectionInit struct {
	Type        string `json:"type"`
	PackageName string `json:"packageName"`
	SessionID   string `json:"sessionId"`
	APIKey      string `json:"apiKey"`
	Timestamp   int64  `json:"timestamp"`
}

type SubscriptionUpdate struct {
	Type          string   `json:"type"`
	PackageName   string   `json:"packageName"`
	SessionID     string   `json:"sessionId"`
	Subscriptions []string `json:"subscriptions"`
}

// ── Cloud → TPA payloads ─────────────────────────────────────────────────────

type TPAConnectionAck struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Settings  []any  `json:"settings,omitempty"`
}

type TPAConnectionError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type AppStopped struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type SettingsUpdate struct {
	Type        string `json:"type"`
	PackageName string `json:"packageName"`
	Settings    []any  `json:"settings"`
}

type DataStream struct {
	Type       string `json:"type"`
	StreamType string `json:"streamType"`
	Data       any    `json:"data"`
}

type CommandActivate struct {
	Type          string `json:"type"`
	CommandID     string `json:"command_id"`
	SpokenPhrase  string `json:"spoken_phrase"`
	Parameters    any    `json:"parameters,omitempty"`
	SessionID     string `json:"sessionId"`
}
