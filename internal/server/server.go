package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"medchat-backend/internal/config"
	"medchat-backend/internal/dialogue"
	"medchat-backend/internal/logger"
	"medchat-backend/internal/nlu"
	"medchat-backend/internal/store"
	"medchat-backend/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	msgNoText       = "لا يوجد نص"
	msgUnreachable  = "تعذر الاتصال بخدمة الرد. حاول مرة أخرى بعد قليل"
	msgTimeout      = "الرد أخد وقت طويل جدًا"
	msgBadReply     = "رد غير متوقع من المودل"
	msgUnknownError = "خطأ غير معروف"
)

const healthCheckTimeout = 2 * time.Second

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type ServerOption func(*Server)

// WithArchiveHealth makes /api/health report the turn archive's reachability.
func WithArchiveHealth(h HealthChecker) ServerOption {
	return func(s *Server) { s.archive = h }
}

// Server serves the chat API on top of the session registry.
type Server struct {
	router   *chi.Mux
	cfg      config.Config
	registry *store.Registry
	pipeline *nlu.Pipeline
	archive  HealthChecker
	validate *validator.Validate
	limiter  *rateLimiter
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewServer builds the router and registers every route.
func NewServer(cfg config.Config, registry *store.Registry, pipeline *nlu.Pipeline, log logrus.FieldLogger, opts ...ServerOption) *Server {
	r := chi.NewRouter()
	s := &Server{
		router:   r,
		cfg:      cfg,
		registry: registry,
		pipeline: pipeline,
		validate: validator.New(),
		limiter:  newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, limiterIdleTTL),
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Forwarded headers are only trusted behind a known proxy; otherwise a
	// client could pick its own rate-limit bucket.
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestID)
	r.Use(accessLog(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With", "X-Session-Id", RequestIDHeader},
		ExposedHeaders:   []string{"X-Session-Id", RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Group(func(r chi.Router) {
		if s.cfg.RateLimitRPS > 0 {
			r.Use(s.rateLimit)
		}
		r.Post("/api/new_chat", s.handleNewChat)
		r.Post("/api/chat", s.handleChat)
		r.Delete("/api/session", s.handleDeleteSession)
		r.Get("/api/history", s.handleHistory)
		r.Get("/api/context", s.handleGetContext)
		r.Put("/api/context", s.handlePutContext)
		r.Post("/api/nlu/parse", s.handleParse)
	})
}

// Router returns the HTTP handler for the API.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := types.HealthResponse{Status: "ok", Sessions: s.registry.Len()}
	if s.archive != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.archive.HealthCheck(ctx); err != nil {
			logger.FromContext(r.Context(), s.log).WithField("error", err.Error()).Warn("turn archive unreachable")
			resp.Status = "degraded"
			resp.Archive = "unavailable"
		} else {
			resp.Archive = "ok"
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionIDForTurn(w, r)
	s.registry.Reset(sid)
	logger.FromContext(r.Context(), s.log).WithField("session_id", sid).Info("new chat started")

	w.Header().Set("X-Session-Id", sid)
	s.writeJSON(w, http.StatusOK, types.NewChatResponse{Status: "ok", SessionID: sid})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, msgNoText, "")
		return
	}

	sid := s.sessionIDForTurn(w, r)
	session, _ := s.registry.GetOrCreate(sid)
	w.Header().Set("X-Session-Id", sid)

	res, err := session.ProcessTurn(r.Context(), req.Message)
	if err != nil {
		s.writeDialogueError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, types.ChatResponse{
		SessionID: sid,
		Reply:     res.Response,
		Intent:    res.Intent,
		Entities:  res.Entities,
		Context:   res.Context,
		Timestamp: s.now().Format("15:04"),
	})
}

// handleDeleteSession tears the caller's session down and clears its cookie.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sid := getSessionID(r)
	ClearSessionCookie(w)
	if sid == "" || !s.registry.Delete(sid) {
		s.writeError(w, http.StatusNotFound, store.ErrSessionNotFound.Error(), "")
		return
	}
	logger.FromContext(r.Context(), s.log).WithField("session_id", sid).Info("session deleted")
	s.writeJSON(w, http.StatusOK, types.NewChatResponse{Status: "deleted", SessionID: sid})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, types.HistoryResponse{SessionID: session.ID(), History: session.History()})
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	session, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, types.ContextResponse{SessionID: session.ID(), Context: session.Context()})
}

// handlePutContext seeds or restores context keys on an existing session.
func (s *Server) handlePutContext(w http.ResponseWriter, r *http.Request) {
	session, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req types.ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "context is required", "")
		return
	}
	if err := session.MergeContext(req.Context); err != nil {
		s.writeDialogueError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, types.ContextResponse{SessionID: session.ID(), Context: session.Context()})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req types.ParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, msgNoText, "")
		return
	}
	s.writeJSON(w, http.StatusOK, s.pipeline.Parse(req.Text))
}

// lookupSession resolves the caller's existing session or writes a 404.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*dialogue.Session, bool) {
	sid := getSessionID(r)
	if sid == "" {
		s.writeError(w, http.StatusNotFound, store.ErrSessionNotFound.Error(), "")
		return nil, false
	}
	session, err := s.registry.Get(sid)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error(), "")
		return nil, false
	}
	w.Header().Set("X-Session-Id", sid)
	return session, true
}

func (s *Server) writeDialogueError(w http.ResponseWriter, r *http.Request, err error) {
	var genErr *dialogue.GeneratorError
	switch {
	case errors.Is(err, dialogue.ErrEmptyUtterance):
		s.writeError(w, http.StatusBadRequest, msgNoText, "")
	case errors.Is(err, dialogue.ErrUnknownContextKey):
		s.writeError(w, http.StatusBadRequest, "unknown context key", err.Error())
	case errors.As(err, &genErr):
		switch genErr.Kind {
		case dialogue.GeneratorTimeout:
			s.writeError(w, http.StatusGatewayTimeout, msgTimeout, "")
		case dialogue.GeneratorMalformed:
			s.writeError(w, http.StatusBadGateway, msgBadReply, "")
		default:
			s.writeError(w, http.StatusServiceUnavailable, msgUnreachable, "")
		}
	default:
		logger.FromContext(r.Context(), s.log).WithField("error", err.Error()).Error("unexpected dialogue error")
		s.writeError(w, http.StatusInternalServerError, msgUnknownError, "")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithField("error", err.Error()).Warn("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg, details string) {
	s.writeJSON(w, code, types.ErrorResponse{Error: msg, Details: details})
}

// getSessionID reads the session id from the cookie, then the X-Session-Id
// header, then the sessionId query parameter.
func getSessionID(r *http.Request) string {
	if cookie, err := GetSessionCookie(r); err == nil && cookie != "" {
		return cookie
	}
	if sid := r.Header.Get("X-Session-Id"); sid != "" {
		return sid
	}
	return r.URL.Query().Get("sessionId")
}

// sessionIDForTurn returns the caller's session id, minting one when the
// request carries none. The cookie is re-sent every time so it lives as long
// as the session's idle TTL.
func (s *Server) sessionIDForTurn(w http.ResponseWriter, r *http.Request) string {
	sid := getSessionID(r)
	if sid == "" {
		sid = store.NewSessionID()
	}
	SetSessionCookie(w, r, sid, s.cfg.SessionIdleTTL)
	return sid
}
