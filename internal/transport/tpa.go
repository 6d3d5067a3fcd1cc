package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/augmentos-org/cloud-core/internal/display"
	"github.com/augmentos-org/cloud-core/internal/lifecycle"
	"github.com/augmentos-org/cloud-core/internal/sessionregistry"
	"github.com/augmentos-org/cloud-core/internal/subscription"
	"github.com/augmentos-org/cloud-core/internal/wire"
)

// TPAHandler upgrades and drives a TPA WebSocket channel (spec.md §6's
// `/<tpa-path>` endpoint). The first frame on every connection must be a
// tpa_connection_init; nothing else is accepted before it binds.
type TPAHandler struct {
	Hub      *Hub
	Validate lifecycle.APIKeyValidator
}

// DefaultAPIKeyValidator implements spec.md §4.3's bind check: the claimed
// key must match the app's registered key, except system apps connecting
// from a loopback/internal address are exempted (they run in-cluster and
// carry no externally-issued key).
func DefaultAPIKeyValidator(app lifecycle.App, claimedKey, remoteAddr string) bool {
	if app.Kind == lifecycle.KindSystem && isInternalAddr(remoteAddr) {
		return true
	}
	return claimedKey != "" && claimedKey == app.APIKey
}

func isInternalAddr(remoteAddr string) bool {
	host := remoteAddr
	if idx := strings.LastIndex(remoteAddr, ":"); idx != -1 {
		host = strings.Trim(remoteAddr[:idx], "[]")
	}
	return host == "127.0.0.1" || host == "::1" || host == "localhost"
}

func (h TPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	ctx := r.Context()
	ac := newWSChannel(conn)

	_, raw, err := conn.Read(ctx)
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "no init frame")
		return
	}
	msgType, body, err := wire.Decode(raw)
	if err != nil || msgType != wire.TypeTPAConnectionInit {
		h.sendError(ac, "first frame must be tpa_connection_init")
		conn.Close(websocket.StatusPolicyViolation, "bad handshake")
		return
	}
	var init wire.TPAConnectionInit
	if err := json.Unmarshal(body, &init); err != nil {
		h.sendError(ac, "malformed tpa_connection_init")
		conn.Close(websocket.StatusPolicyViolation, "bad handshake")
		return
	}

	s := h.Hub.Sessions.GetSession(init.SessionID)
	if s == nil {
		h.sendError(ac, "unknown session")
		conn.Close(websocket.StatusPolicyViolation, "unknown session")
		return
	}

	validate := h.Validate
	if validate == nil {
		validate = DefaultAPIKeyValidator
	}
	if err := h.Hub.Controller.BindTPA(ctx, s, init.PackageName, init.APIKey, r.RemoteAddr, validate, ac); err != nil {
		h.sendTPAError(ac, err.Error())
		conn.Close(websocket.StatusPolicyViolation, "bind rejected")
		return
	}

	ack := wire.TPAConnectionAck{Type: wire.TypeTPAConnectionAck, SessionID: s.SessionID}
	if err := ac.SendText(ack); err != nil {
		conn.Close(websocket.StatusInternalError, "ack failed")
		return
	}
	h.Hub.notifyAppState(s)

	h.readLoop(ctx, s, init.PackageName, ac, conn)
}

func (h TPAHandler) sendError(ac *wsChannel, message string) {
	_ = ac.SendText(wire.ConnectionError{Type: wire.TypeConnectionError, Message: message})
}

func (h TPAHandler) sendTPAError(ac *wsChannel, message string) {
	_ = ac.SendText(wire.TPAConnectionError{Type: wire.TypeTPAConnectionError, Message: message})
}

func (h TPAHandler) readLoop(ctx context.Context, s *sessionregistry.Session, packageName string, ac *wsChannel, conn *websocket.Conn) {
	limiter := newInboundLimiter()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ == websocket.MessageBinary {
			// TPAs do not send binary frames upstream; ignore.
			continue
		}
		if !limiter.Allow() {
			slog.Warn("tpa: dropping message, rate limit exceeded", "session", s.SessionID, "package", packageName)
			continue
		}

		msgType, raw, err := wire.Decode(data)
		if err != nil {
			slog.Warn("tpa: decode error", "session", s.SessionID, "package", packageName, "err", err)
			continue
		}
		h.Hub.HandleTPAMessage(ctx, s, packageName, msgType, raw)
	}
}

// HandleTPAMessage dispatches one decoded TPA→cloud message (spec.md §6).
func (h *Hub) HandleTPAMessage(ctx context.Context, s *sessionregistry.Session, packageName, msgType string, raw json.RawMessage) {
	switch msgType {
	case wire.TypeSubscriptionUpdate:
		var m wire.SubscriptionUpdate
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		h.applySubscriptionUpdate(ctx, s, packageName, m.Subscriptions)

	case wire.TypeTPADisplayEvent:
		var frame tpaDisplayEvent
		if err := json.Unmarshal(raw, &frame); err != nil {
			return
		}
		if svc := h.servicesFor(s.SessionID); svc != nil {
			svc.arbiter.Submit(display.Request{
				View:        frame.View,
				Layout:      frame.Layout,
				DurationMs:  frame.DurationMs,
				PackageName: packageName,
				SessionID:   s.SessionID,
			})
		}

	default:
		slog.Warn("tpa: unknown message type", "session", s.SessionID, "package", packageName, "type", msgType)
	}
}

// applySubscriptionUpdate installs packageName's new subscription set and
// reconciles both the ASR language projection and the mic debounce target,
// since a TPA can add or remove media-requiring subscriptions at any point
// in its active lifetime, not just at bind/unbind (spec.md §8: the
// hasMediaSubscriptions invariant holds at every point, not just across
// StartApp/StopApp transitions).
func (h *Hub) applySubscriptionUpdate(ctx context.Context, s *sessionregistry.Session, packageName string, raw []string) {
	keys := make([]subscription.Key, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, subscription.ParseKey(k))
	}
	h.Subs.Update(s.SessionID, packageName, keys)

	svc := h.servicesFor(s.SessionID)
	if svc == nil {
		return
	}
	h.reconcileLanguages(ctx, s, svc)
	svc.mic.SetDesired(h.Subs.HasMediaSubscriptions(s.SessionID))
}

// tpaDisplayEvent is a TPA's outbound display request (spec.md §6's
// TPA→cloud display_event). PackageName and SessionID are not trusted from
// the wire; both are supplied by the bound connection itself.
type tpaDisplayEvent struct {
	Type       string `json:"type"`
	View       string `json:"view"`
	Layout     any    `json:"layout"`
	DurationMs *int   `json:"durationMs,omitempty"`
}
