// Package kernel exposes the HTTP API: chat (blocking and streaming),
// thread history, traces, settings, and health.
package kernel

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rs/cors"

	"github.com/manthysbr/lineOS/internal/config"
	"github.com/manthysbr/lineOS/internal/core/domain"
	"github.com/manthysbr/lineOS/internal/core/ports"
	"github.com/manthysbr/lineOS/internal/core/services"
)

type Server struct {
	logger   *slog.Logger
	agent    *services.AgentService
	eventBus *services.EventBus
	tracer   *services.TraceCollector
	settings *config.SettingsStore
	repo     ports.Repository
	registry *domain.ToolRegistry
}

func NewServer(
	logger *slog.Logger,
	agent *services.AgentService,
	eventBus *services.EventBus,
	tracer *services.TraceCollector,
	settings *config.SettingsStore,
	repo ports.Repository,
	registry *domain.ToolRegistry,
) *Server {
	return &Server{
		logger:   logger,
		agent:    agent,
		eventBus: eventBus,
		tracer:   tracer,
		settings: settings,
		repo:     repo,
		registry: registry,
	}
}

// Handler builds the routed, CORS-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("POST /v1/chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /v1/threads/{id}/messages", s.handleThreadMessages)
	mux.HandleFunc("GET /v1/threads/{id}/events", s.handleThreadEvents)
	mux.HandleFunc("GET /v1/traces", s.handleListTraces)
	mux.HandleFunc("GET /v1/traces/{id}", s.handleGetTrace)
	mux.HandleFunc("GET /v1/tools", s.handleListTools)
	mux.HandleFunc("GET /v1/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /v1/settings", s.handleUpdateSettings)
	mux.HandleFunc("GET /v1/health", s.handleHealth)

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(mux)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	state, err := s.agent.Run(r.Context(), req.Question, req.ThreadID)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, newChatResponse(state))
}

func (s *Server) handleThreadMessages(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	limit := queryInt(r, "limit", 50)

	messages, err := s.repo.ListRecent(r.Context(), threadID, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	summary, err := s.repo.GetSummary(r.Context(), threadID)
	if err != nil {
		summary = ""
	}

	resp := ThreadMessagesResponse{
		ThreadID: threadID,
		Summary:  summary,
		Messages: make([]MessageView, 0, len(messages)),
	}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, MessageView{
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	s.writeJSON(w, http.StatusOK, s.tracer.ListTraces(limit))
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	id := domain.TraceID(r.PathValue("id"))

	// Serve from the in-memory ring first, fall back to the database.
	if trace, err := s.tracer.GetTrace(id); err == nil {
		s.writeJSON(w, http.StatusOK, trace)
		return
	}
	trace, err := s.repo.GetTrace(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, trace)
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	tools := s.registry.List()
	out := make([]ToolView, 0, len(tools))
	for _, t := range tools {
		view := ToolView{Name: t.Name, Description: t.Description}
		if t.Args != nil {
			view.Required = t.Args.Required
		}
		out = append(out, view)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.settings.GetMaskedConfig())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update domain.AppConfig
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.settings.UpdateConfig(r.Context(), &update); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.settings.GetMaskedConfig())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	cfg := s.settings.GetConfig()
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Model:  cfg.LLM.Model,
		Tools:  len(s.registry.Names()),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
