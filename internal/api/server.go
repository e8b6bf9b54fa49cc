package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/edvin/kubelease/internal/api/handler"
	mw "github.com/edvin/kubelease/internal/api/middleware"
)

type Server struct {
	router chi.Router
	logger zerolog.Logger
	chat   *handler.Chat
}

func NewServer(logger zerolog.Logger, bot handler.Bot, leases handler.Leases, originPatterns []string) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: logger,
		chat:   handler.NewChat(bot, leases, originPatterns),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/messages", s.chat.Message)
		r.Post("/intents", s.chat.Intent)
		r.Get("/clusters", s.chat.Clusters)
		r.Get("/chat", s.chat.Connect)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
