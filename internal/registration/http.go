package registration

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/augmentos-org/cloud-core/internal/apperrors"
)

// defaultRateLimitRPS and defaultRateLimitBurst back Router when the
// registration config carries no override (matches the defaults documented
// on config.RegistrationConfig).
const (
	defaultRateLimitRPS   = 5.0
	defaultRateLimitBurst = 10
)

// RateLimit holds the per-client-IP window the registration HTTP surface is
// throttled to (spec.md §6). Burst is the request count Router allows within
// one second; RPS informs the per-minute ceiling so a client can't sustain
// bursts indefinitely.
type RateLimit struct {
	RPS   float64
	Burst int
}

func (rl RateLimit) resolve() RateLimit {
	if rl.RPS <= 0 {
		rl.RPS = defaultRateLimitRPS
	}
	if rl.Burst <= 0 {
		rl.Burst = defaultRateLimitBurst
	}
	return rl
}

// Router builds the chi mux serving the registration HTTP surface (spec.md
// §6: POST /register, POST /heartbeat, POST /restart).
func Router(svc *Service, rl RateLimit) chi.Router {
	rl = rl.resolve()

	r := chi.NewRouter()
	r.Use(httprate.Limit(rl.Burst, time.Second, httprate.WithKeyFuncs(httprate.KeyByIP)))
	r.Use(httprate.Limit(int(rl.RPS*60), time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))

	r.Post("/register", handleRegister(svc))
	r.Post("/heartbeat", handleHeartbeat(svc))
	r.Post("/restart", handleRestart(svc))
	return r
}

type registerRequest struct {
	PackageName string   `json:"packageName"`
	APIKey      string   `json:"apiKey"`
	WebhookURL  string   `json:"webhookUrl"`
	ServerURLs  []string `json:"serverUrls"`
}

type registerResponse struct {
	Success        bool   `json:"success"`
	RegistrationID string `json:"registrationId"`
}

func handleRegister(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, apperrors.NewResponse(apperrors.ProtocolError("malformed body")))
			return
		}
		if req.PackageName == "" || req.WebhookURL == "" {
			writeJSON(w, http.StatusBadRequest, apperrors.NewResponse(apperrors.ProtocolError("packageName and webhookUrl are required")))
			return
		}

		registrationID, err := svc.Register(r.Context(), req.PackageName, req.APIKey, req.WebhookURL, req.ServerURLs)
		if err != nil {
			if errors.Is(err, apperrors.ErrAuthFailure) {
				writeJSON(w, http.StatusUnauthorized, apperrors.NewResponse(err))
				return
			}
			writeJSON(w, http.StatusBadRequest, apperrors.NewResponse(err))
			return
		}
		writeJSON(w, http.StatusCreated, registerResponse{Success: true, RegistrationID: registrationID})
	}
}

type heartbeatRequest struct {
	RegistrationID string `json:"registrationId"`
}

func handleHeartbeat(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req heartbeatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, apperrors.NewResponse(apperrors.ProtocolError("malformed body")))
			return
		}
		if err := svc.Heartbeat(r.Context(), req.RegistrationID); err != nil {
			if errors.Is(err, apperrors.ErrRegistrationNotFound) {
				writeJSON(w, http.StatusNotFound, apperrors.NewResponse(err))
				return
			}
			writeJSON(w, http.StatusInternalServerError, apperrors.NewResponse(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

type restartRequest struct {
	RegistrationID string `json:"registrationId"`
}

type restartResponse struct {
	Success           bool `json:"success"`
	RecoveredSessions int  `json:"recoveredSessions"`
}

func handleRestart(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req restartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, apperrors.NewResponse(apperrors.ProtocolError("malformed body")))
			return
		}
		recovered, err := svc.Restart(r.Context(), req.RegistrationID)
		if err != nil {
			if errors.Is(err, apperrors.ErrRegistrationNotFound) {
				writeJSON(w, http.StatusNotFound, apperrors.NewResponse(err))
				return
			}
			writeJSON(w, http.StatusInternalServerError, apperrors.NewResponse(err))
			return
		}
		writeJSON(w, http.StatusOK, restartResponse{Success: true, RecoveredSessions: recovered})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
