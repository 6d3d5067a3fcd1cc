package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"

	"github.com/augmentos-org/cloud-core/internal/apperrors"
	"github.com/augmentos-org/cloud-core/internal/sessionregistry"
	"github.com/augmentos-org/cloud-core/internal/subscription"
	"github.com/augmentos-org/cloud-core/internal/wire"
)

// GlassesAuth verifies the bearer token carried on the glasses upgrade
// request against the identity provider's JWT secret and extracts the
// user's email, used as userId (spec.md §6).
type GlassesAuth struct {
	Secret string
	Issuer string
}

func (a GlassesAuth) userIDFromToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", apperrors.AuthFailure("missing bearer token")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(a.Secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", apperrors.AuthFailure("invalid bearer token: " + err.Error())
	}
	if a.Issuer != "" {
		iss, _ := claims.GetIssuer()
		if iss != a.Issuer {
			return "", apperrors.AuthFailure("unexpected issuer")
		}
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return "", apperrors.AuthFailure("token missing email claim")
	}
	return email, nil
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// GlassesHandler upgrades and drives the glasses WebSocket channel (spec.md
// §6's `/<glasses-path>` endpoint).
type GlassesHandler struct {
	Hub  *Hub
	Auth GlassesAuth
}

func (h GlassesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.Auth.userIDFromToken(bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	gc := newWSChannel(conn)
	s, adopted := h.Hub.Sessions.CreateSession(gc, userID)
	h.Hub.ensureServices(s)

	ack := wire.ConnectionAck{
		Type:      wire.TypeConnectionAck,
		SessionID: s.SessionID,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := gc.SendText(ack); err != nil {
		conn.Close(websocket.StatusInternalError, "ack failed")
		return
	}
	if adopted {
		h.Hub.notifyAppState(s)
	}

	h.readLoop(r.Context(), s, gc, conn)
}

func (h GlassesHandler) readLoop(ctx context.Context, s *sessionregistry.Session, gc *wsChannel, conn *websocket.Conn) {
	defer h.Hub.Sessions.MarkDisconnected(s)

	limiter := newInboundLimiter()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		if typ == websocket.MessageBinary {
			h.Hub.HandleAudio(s, data)
			continue
		}

		if !limiter.Allow() {
			slog.Warn("glasses: dropping message, rate limit exceeded", "session", s.SessionID)
			continue
		}

		msgType, raw, err := wire.Decode(data)
		if err != nil {
			slog.Warn("glasses: decode error", "session", s.SessionID, "err", err)
			continue
		}
		h.Hub.HandleGlassesMessage(ctx, s, msgType, raw)
	}
}

// HandleAudio forwards a binary audio frame to the ASR multiplexer and to
// any TPA subscribed to audio_chunk (spec.md §4.4, §4.8).
func (h *Hub) HandleAudio(s *sessionregistry.Session, frame []byte) {
	h.Router.RouteAudio(s, frame)
	if svc := h.servicesFor(s.SessionID); svc != nil {
		svc.mux.PushAudio(frame)
	}
}

// HandleGlassesMessage dispatches one decoded glasses→cloud message
// (spec.md §6).
func (h *Hub) HandleGlassesMessage(ctx context.Context, s *sessionregistry.Session, msgType string, raw json.RawMessage) {
	switch msgType {
	case wire.TypeConnectionInit:
		// No-op: the ack was already sent at connect time.

	case wire.TypeStartApp:
		var m wire.StartApp
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		if _, err := h.Controller.StartApp(ctx, s, m.PackageName); err != nil {
			slog.Warn("start_app failed", "session", s.SessionID, "package", m.PackageName, "err", err)
		}
		h.notifyAppState(s)

	case wire.TypeStopApp:
		var m wire.StopApp
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		h.Controller.StopApp(ctx, s, m.PackageName, "client_requested")
		h.notifyAppState(s)

	case wire.TypeVAD:
		var m wire.VAD
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		speaking, err := m.Bool()
		if err != nil {
			return
		}
		h.Router.RouteEvent(s, subscription.ParseKey(subscription.KeyVAD), subscription.KeyVAD, map[string]bool{"speaking": speaking})

	case wire.TypeLocationUpdate:
		h.routeRaw(s, subscription.KeyLocationUpdate, raw)
	case wire.TypeCalendarEvent:
		h.routeRaw(s, subscription.KeyCalendarEvent, raw)
	case wire.TypeHeadPosition:
		h.routeRaw(s, subscription.KeyHeadPosition, raw)
	case wire.TypeButtonPress:
		h.routeRaw(s, subscription.KeyButtonPress, raw)
	case wire.TypePhoneNotification:
		h.routeRaw(s, subscription.KeyPhoneNotification, raw)
	case wire.TypeNotificationDismissed:
		h.routeRaw(s, subscription.KeyPhoneNotification, raw)
	case wire.TypeGlassesBatteryUpdate:
		h.routeRaw(s, subscription.KeyGlassesBattery, raw)
	case wire.TypePhoneBatteryUpdate:
		h.routeRaw(s, subscription.KeyPhoneBattery, raw)
	case wire.TypeGlassesConnectionState:
		// Status-only telemetry; no subscriber fan-out defined in spec.md §6.

	default:
		slog.Warn("glasses: unknown message type", "session", s.SessionID, "type", msgType)
	}
}

func (h *Hub) routeRaw(s *sessionregistry.Session, baseKey string, raw json.RawMessage) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	h.Router.RouteEvent(s, subscription.ParseKey(baseKey), baseKey, payload)
}
