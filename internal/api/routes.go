//
//
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/radio-control/rcpilot/internal/audit"
	"github.com/radio-control/rcpilot/internal/auth"
	"github.com/radio-control/rcpilot/internal/stick"
)

// BasePath prefixes every route.
const BasePath = "/api/v1"

// RegisterRoutes registers every v1 endpoint on r.
func (s *Server) RegisterRoutes(r *mux.Router) {
	v1 := r.PathPrefix(BasePath).Subrouter()
	m := s.authMiddleware

	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/override", m.Protect(s.handleOverride, auth.ScopeRead)).Methods(http.MethodGet)
	v1.HandleFunc("/channels/{ch}", m.Protect(s.handleSetChannel, auth.ScopeControl)).Methods(http.MethodPut)
	v1.HandleFunc("/channels", m.Protect(s.handleSetAll, auth.ScopeControl)).Methods(http.MethodPut)
	v1.HandleFunc("/sticks/{axis}", m.Protect(s.handleSetStick, auth.ScopeControl)).Methods(http.MethodPut)
	v1.HandleFunc("/commands", m.Protect(s.handleCommand, auth.ScopeControl)).Methods(http.MethodPost)
	v1.HandleFunc("/telemetry", m.Protect(s.handleTelemetry, auth.ScopeTelemetry)).Methods(http.MethodGet)
	v1.HandleFunc("/telemetry/ws", m.Protect(s.handleTelemetryWS, auth.ScopeTelemetry)).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s is not allowed", r.Method), nil)
	})
}

type valueRequest struct {
	Value *int `json:"value"`
}

type stickRequest struct {
	Percent *int `json:"percent"`
}

type commandRequest struct {
	Line string `json:"line"`
}

// handleOverride handles GET /override
func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, s.control.Status())
}

// handleSetChannel handles PUT /channels/{ch}
func (s *Server) handleSetChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := strconv.Atoi(mux.Vars(r)["ch"])
	if err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_CHANNEL", "Channel must be an integer between 1 and 8", nil)
		return
	}

	var req valueRequest
	if err := decodeStrict(r, &req); err != nil {
		WriteErr(w, err)
		return
	}
	if req.Value == nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Missing required field: value", nil)
		return
	}

	if err := s.control.SetChannel(apiContext(r), ch, *req.Value); err != nil {
		WriteErr(w, err)
		return
	}
	WriteSuccess(w, s.control.Status())
}

// handleSetAll handles PUT /channels
func (s *Server) handleSetAll(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := decodeStrict(r, &req); err != nil {
		WriteErr(w, err)
		return
	}
	if req.Value == nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Missing required field: value", nil)
		return
	}

	if err := s.control.SetAll(apiContext(r), *req.Value); err != nil {
		WriteErr(w, err)
		return
	}
	WriteSuccess(w, s.control.Status())
}

// handleSetStick handles PUT /sticks/{axis}
func (s *Server) handleSetStick(w http.ResponseWriter, r *http.Request) {
	axis, err := stick.ParseAxis(mux.Vars(r)["axis"])
	if err != nil {
		WriteErr(w, err)
		return
	}

	var req stickRequest
	if err := decodeStrict(r, &req); err != nil {
		WriteErr(w, err)
		return
	}
	if req.Percent == nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Missing required field: percent", nil)
		return
	}

	if err := s.control.SetAxis(apiContext(r), axis, *req.Percent); err != nil {
		WriteErr(w, err)
		return
	}
	WriteSuccess(w, s.control.Status())
}

// handleCommand handles POST /commands
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := decodeStrict(r, &req); err != nil {
		WriteErr(w, err)
		return
	}
	if req.Line == "" {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Missing required field: line", nil)
		return
	}

	result, err := s.control.Execute(apiContext(r), req.Line)
	if err != nil {
		WriteErr(w, err)
		return
	}
	WriteSuccess(w, result)
}

// handleTelemetry handles GET /telemetry (SSE)
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if s.telemetryHub == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Telemetry service not available", nil)
		return
	}

	// The stream outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	if err := s.telemetryHub.Subscribe(r.Context(), w, r); err != nil {
		s.logger.Debug("telemetry stream ended", "error", err.Error())
	}
}

// handleTelemetryWS handles GET /telemetry/ws
func (s *Server) handleTelemetryWS(w http.ResponseWriter, r *http.Request) {
	if s.telemetryHub == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Telemetry service not available", nil)
		return
	}
	if err := s.telemetryHub.ServeWebSocket(w, r); err != nil {
		s.logger.Debug("telemetry websocket ended", "error", err.Error())
	}
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	subsystems := map[string]bool{
		"control":   s.control != nil,
		"telemetry": s.telemetryHub != nil,
	}

	health := map[string]interface{}{
		"status":     "ok",
		"uptimeSec":  time.Since(s.startTime).Seconds(),
		"version":    Version,
		"subsystems": subsystems,
	}
	if s.control != nil {
		health["override"] = s.control.Status().State
	}
	if s.telemetryHub != nil {
		health["subscribers"] = s.telemetryHub.ClientCount()
	}

	if !subsystems["control"] || !subsystems["telemetry"] {
		health["status"] = "degraded"
		WriteError(w, http.StatusServiceUnavailable, "SERVICE_DEGRADED",
			"One or more subsystems are unavailable", health)
		return
	}
	WriteSuccess(w, health)
}

func apiContext(r *http.Request) context.Context {
	return audit.WithSource(r.Context(), "api")
}

// decodeStrict decodes one JSON object, rejecting unknown fields and
// trailing data.
func decodeStrict(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON or unknown fields", ErrBadRequest)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: trailing data after JSON object", ErrBadRequest)
	}
	return nil
}
