package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/DamienDrash/arni-sub002/internal/config"
	"github.com/DamienDrash/arni-sub002/internal/conversation"
	"github.com/DamienDrash/arni-sub002/internal/engine"
	"github.com/DamienDrash/arni-sub002/internal/ghost"
	"github.com/DamienDrash/arni-sub002/internal/observability"
	"github.com/DamienDrash/arni-sub002/internal/protocol"
)

type Server struct {
	cfg        config.Config
	engine     *engine.Engine
	supervisor *ghost.Supervisor
	metrics    *observability.Metrics
	hub        *operatorHub
	upgrader   websocket.Upgrader
}

func New(cfg config.Config, eng *engine.Engine, supervisor *ghost.Supervisor, metrics *observability.Metrics) *Server {
	s := &Server{
		cfg:        cfg,
		engine:     eng,
		supervisor: supervisor,
		metrics:    metrics,
		hub:        newOperatorHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up. This keeps other
				// websites from driving the operator console if the service
				// is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
	supervisor.SetPreviewHook(s.hub.pushPreview)
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/messages", s.handleInboundMessage)
	r.Get("/v1/conversations/{id}", s.handleGetConversation)
	r.Get("/v1/conversations/{id}/overrides", s.handleListOverrides)
	r.Post("/v1/conversations/{id}/consent", s.handleConsent)
	r.Get("/v1/operator/ws", s.handleOperatorWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handleInboundMessage accepts a channel-adapter webhook and hands the turn
// to the conversation worker. The reply is delivered via the outbound bus,
// not this HTTP response.
func (s *Server) handleInboundMessage(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	msg, err := protocol.ParseInboundMessage(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_message", err.Error())
		return
	}

	if err := s.engine.HandleInbound(msg); err != nil {
		if errors.Is(err, engine.ErrQueueFull) {
			respondError(w, http.StatusTooManyRequests, "queue_full", "conversation is busy, retry shortly")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"status":          "accepted",
		"conversation_id": msg.ConversationID,
	})
}

type conversationResponse struct {
	ConversationID string                            `json:"conversation_id"`
	TenantID       string                            `json:"tenant_id"`
	Channel        string                            `json:"channel"`
	Status         conversation.Status               `json:"status"`
	Pending        *conversation.PendingConfirmation `json:"pending_confirmation,omitempty"`
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_conversation_id", "missing conversation id")
		return
	}

	conv, err := s.engine.Conversation(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "conversation_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, conversationResponse{
		ConversationID: conv.ID,
		TenantID:       conv.TenantID,
		Channel:        conv.Channel,
		Status:         conv.Status,
		Pending:        conv.Pending(),
	})
}

// handleListOverrides serves the persisted ghost-mode audit trail for a
// conversation. Supervisors use it to review what operators changed.
func (s *Server) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_conversation_id", "missing conversation id")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	audits, err := s.engine.OverrideAudits(r.Context(), id, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"overrides":       audits,
	})
}

type consentRequest struct {
	Status string `json:"status"`
}

// handleConsent grants or revokes data-processing consent. Revocation only
// returns 200 once every memory tier confirmed removal; on failure the
// caller retries the same request.
func (s *Server) handleConsent(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_conversation_id", "missing conversation id")
		return
	}
	var req consentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case "granted":
		if err := s.engine.GrantConsent(id); err != nil {
			respondError(w, http.StatusNotFound, "conversation_not_found", err.Error())
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"status": "granted"})
	case "revoked":
		if err := s.engine.RevokeConsent(r.Context(), id); err != nil {
			if errors.Is(err, conversation.ErrNotFound) {
				respondError(w, http.StatusNotFound, "conversation_not_found", err.Error())
				return
			}
			respondError(w, http.StatusServiceUnavailable, "erasure_incomplete", err.Error())
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"status": "revoked", "erased": true})
	default:
		respondError(w, http.StatusBadRequest, "invalid_status", "status must be granted or revoked")
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, errEmptyBody
	}
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errEmptyBody
	}
	return raw, nil
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
