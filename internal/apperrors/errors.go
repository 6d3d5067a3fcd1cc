// Package apperrors defines the error taxonomy shared by every layer of the
// session core: sentinel errors for classification via errors.Is, and small
// typed errors for the cases that carry structured detail back to a caller
// or an HTTP/WS response body.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Wrap these with fmt.Errorf("...: %w", Err...) at each
// layer boundary so callers can classify failures with errors.Is without
// caring which component produced them.
var (
	// ErrAuthFailure covers a missing or invalid bearer token, or an invalid
	// TPA API key. The channel is rejected at handshake; no session
	// side-effect occurs.
	ErrAuthFailure = errors.New("apperrors: authentication failed")

	// ErrProtocolError covers malformed JSON or an unknown message
	// discriminant. Only the offending message is rejected; the channel
	// stays open.
	ErrProtocolError = errors.New("apperrors: protocol error")

	// ErrAppNotFound is returned when startApp references an unknown package.
	ErrAppNotFound = errors.New("apperrors: app not found")

	// ErrAppStartTimeout is returned when a TPA does not bind its channel
	// within the loading timeout.
	ErrAppStartTimeout = errors.New("apperrors: app start timed out")

	// ErrTPAWebhookFailure wraps a failed webhook dispatch. Non-fatal for
	// stop; for start it is only fatal if no bind follows within the
	// loading timeout.
	ErrTPAWebhookFailure = errors.New("apperrors: tpa webhook failed")

	// ErrRecognizerCanceled is returned when an ASR recognizer session ends
	// unexpectedly. Only that one stream is torn down.
	ErrRecognizerCanceled = errors.New("apperrors: recognizer canceled")

	// ErrChannelError covers a transport-level failure on a connection.
	// It always triggers a disconnect transition with a grace window, never
	// an immediate teardown.
	ErrChannelError = errors.New("apperrors: channel error")

	// ErrSessionEnded is terminal: every inbound operation for that
	// sessionId must behave as not-found once returned.
	ErrSessionEnded = errors.New("apperrors: session has ended")

	// ErrRegistrationNotFound is returned by the registration store when a
	// registrationId is unknown.
	ErrRegistrationNotFound = errors.New("apperrors: registration not found")
)

// AppNotFound reports that packageName has no app record.
func AppNotFound(packageName string) error {
	return fmt.Errorf("%w: %s", ErrAppNotFound, packageName)
}

// AppStartTimeout reports that packageName did not bind within the loading
// window.
func AppStartTimeout(packageName string) error {
	return fmt.Errorf("%w: %s", ErrAppStartTimeout, packageName)
}

// AuthFailure wraps a lower-level auth error (bad token, unknown key) with
// the AuthFailure classification.
func AuthFailure(reason string) error {
	return fmt.Errorf("%w: %s", ErrAuthFailure, reason)
}

// ProtocolError wraps a decode or validation failure on a single message.
func ProtocolError(reason string) error {
	return fmt.Errorf("%w: %s", ErrProtocolError, reason)
}

// SessionEnded wraps a not-found lookup against an ended session.
func SessionEnded(sessionID string) error {
	return fmt.Errorf("%w: %s", ErrSessionEnded, sessionID)
}

// Response is the structured {success:false, error} body returned over HTTP
// for every failure in the registration service's surface.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewResponse builds a failure [Response] from err.
func NewResponse(err error) Response {
	return Response{Success: false, Error: err.Error()}
}
