package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/quest-league/internal/domain"
	"github.com/quest-league/internal/service"
	"github.com/quest-league/internal/websocket"
)

// APIVersion is reported by the health endpoint.
const APIVersion = "1.0.0"

// Handler provides HTTP handlers for the quest-league API
type Handler struct {
	service *service.LeagueService
	hub     *websocket.Hub
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc *service.LeagueService, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service: svc,
		hub:     hub,
		logger:  logger,
	}
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)

	// WebSocket endpoint for live leaderboard updates
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.HealthCheck)
		r.Get("/ws/stats", h.GetWebSocketStats)

		r.Post("/agents/register", h.RegisterAgent)

		// Everything below requires a bearer API key
		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Get("/agents/me", h.GetProfile)
			r.Patch("/agents/me", h.UpdateProfile)

			r.Get("/season/current", h.CurrentSeason)
			r.Get("/quests/today", h.TodayQuest)
			r.Get("/quests", h.ListQuests)

			r.Post("/submit", h.Submit)
			r.Get("/status", h.Status)
			r.Get("/leaderboard", h.Leaderboard)
			r.Get("/settlement", h.Settlement)
		})
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type contextKey string

const agentContextKey contextKey = "agent"

// authenticate resolves the bearer credential to an agent and stores it on
// the request context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			h.writeError(w, domain.NewError(domain.KindUnauthorized,
				"Missing or invalid Authorization header. Use: Bearer <api_key>"))
			return
		}

		agent, err := h.service.Authenticate(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			h.writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), agentContextKey, agent)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func agentFrom(r *http.Request) *domain.Agent {
	agent, _ := r.Context().Value(agentContextKey).(*domain.Agent)
	return agent
}

// errorResponse is the error payload shape: the kind title plus a human
// message, with conflict details when a duplicate submission is reported.
type errorResponse struct {
	Error        string `json:"error"`
	Message      string `json:"message,omitempty"`
	SubmissionID int64  `json:"submission_id,omitempty"`
	Status       string `json:"status,omitempty"`
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a tagged error with its mapped status code
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)

	resp := errorResponse{
		Error:   string(kind),
		Message: err.Error(),
	}
	if dup, ok := service.IsDuplicateSubmission(err); ok {
		resp.SubmissionID = dup.SubmissionID
		resp.Status = dup.Status
	}
	if kind == domain.KindInternal {
		h.logger.Error("internal error", "error", err)
		resp.Message = "Internal server error"
	}

	h.writeJSON(w, domain.HTTPStatus(kind), resp)
}

func (h *Handler) badRequest(w http.ResponseWriter, message string) {
	h.writeError(w, domain.NewError(domain.KindBadRequest, message))
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   APIVersion,
	})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// RegisterAgent handles agent registration
func (h *Handler) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	resp, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

// GetProfile returns the authenticated agent's profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, agentFrom(r))
}

// UpdateProfile applies a self-service profile update
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var upd domain.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), agentFrom(r), upd)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, updated)
}

// CurrentSeason returns the active season with its current day
func (h *Handler) CurrentSeason(w http.ResponseWriter, r *http.Request) {
	sn, err := h.service.CurrentSeason(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, sn)
}

// TodayQuest returns the quest for the current season day
func (h *Handler) TodayQuest(w http.ResponseWriter, r *http.Request) {
	quest, err := h.service.TodayQuest(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, quest)
}

// ListQuests returns quests with optional season_id/day filters
func (h *Handler) ListQuests(w http.ResponseWriter, r *http.Request) {
	day := 0
	if dayStr := r.URL.Query().Get("day"); dayStr != "" {
		d, err := strconv.Atoi(dayStr)
		if err != nil {
			h.badRequest(w, "day must be an integer")
			return
		}
		day = d
	}

	quests, err := h.service.ListQuests(r.Context(), r.URL.Query().Get("season_id"), day)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, quests)
}

// submitResponse wraps an accepted submission
type submitResponse struct {
	Message    string             `json:"message"`
	Submission *domain.Submission `json:"submission"`
}

// Submit handles quest submissions
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	sub, err := h.service.Submit(r.Context(), agentFrom(r), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, submitResponse{
		Message:    "Submission received and verified",
		Submission: sub,
	})
}

// Status returns the authenticated agent's season progress
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context(),
		agentFrom(r),
		r.URL.Query().Get("agent_name"),
		r.URL.Query().Get("season_id"),
	)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// Leaderboard returns the ranked season leaderboard
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}

	page, err := h.service.Leaderboard(r.Context(), r.URL.Query().Get("season_id"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, page)
}

// Settlement returns the agent's payout record for a season
func (h *Handler) Settlement(w http.ResponseWriter, r *http.Request) {
	settlement, err := h.service.Settlement(r.Context(), agentFrom(r), r.URL.Query().Get("season_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, settlement)
}
