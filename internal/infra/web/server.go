package web

import (
	"context"
	"net/http"
	"time"

	"velvet-metal/internal/infra/api"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration // per request, except event streams
}

// Server is the HTTP server for the onboarding flow.
type Server struct {
	router chi.Router
	server *http.Server
	log    *zerolog.Logger
}

// NewServer builds the router: shared middleware, the wizard routes, the
// JSON API and any extra handlers (e.g. /metrics).
func NewServer(cfg ServerConfig, h *Handlers, apiServer *api.Server, logger *zerolog.Logger, extra map[string]http.Handler) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(api.TraceID)
	router.Use(api.RequestLog(logger))
	router.Use(api.Recover(logger))

	h.Routes(router, cfg.RequestTimeout)
	if apiServer != nil {
		apiServer.Register(router)
	}
	for pattern, handler := range extra {
		router.Handle(pattern, handler)
	}

	return &Server{
		router: router,
		log:    logger,
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Routes mounts the wizard. Event streams are left without a deadline.
func (h *Handlers) Routes(r chi.Router, timeout time.Duration) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, registerPath, http.StatusFound)
	})
	r.With(api.Timeout(timeout)).Get("/app", h.App)

	r.Route(registerPath, func(r chi.Router) {
		r.Use(h.withWizardSession)
		r.Get("/services/events", h.ServiceEvents)

		r.Group(func(r chi.Router) {
			r.Use(api.Timeout(timeout))
			r.Get("/", h.Register)
			r.Post("/account", h.SubmitAccount)
			r.Post("/avatar", h.UploadAvatar)
			r.Post("/avatar/remove", h.RemoveAvatar)
			r.Get("/avatar/preview/{token}", h.AvatarPreview)
			r.Post("/tier", h.SelectTier)
			r.Post("/continue", h.Continue)
			r.Post("/back", h.Back)
			r.Get("/connect/{service}", h.Connect)
			r.Get("/callback/{service}", h.Callback)
			r.Get("/services/status", h.ServiceStatus)
			r.Post("/complete", h.Complete)
		})
	})
}

func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
