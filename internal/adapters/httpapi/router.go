package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/app"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/config"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/domain"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/ports"
)

// ProgramResolver résout une émission de bout en bout (app.ProgramService).
type ProgramResolver interface {
	Program(ctx context.Context, path string) (domain.Program, error)
	Invalidate(ctx context.Context, path string) error
}

type Options struct {
	// BaseURL est l'URL publique du gateway, utilisée dans les flux.
	BaseURL string
	// Catalog liste les émissions de la page d'accueil.
	Catalog []config.Program
	// RequestTimeout borne chaque requête HTTP entrante.
	RequestTimeout time.Duration

	Settings *app.SettingsService
	Bus      ports.EventBus
	// OnSettingsUpdated est appelé après un PUT /settings réussi (limiteur, débit).
	OnSettingsUpdated func(domain.Settings)
	// CacheStats alimente /health. Optionnel.
	CacheStats func(ctx context.Context) (map[string]int, error)
	// ResolutionStats expose le fan-out des enclosures dans /health. Optionnel.
	ResolutionStats func() app.LimiterStats
}

type Server struct {
	logger   zerolog.Logger
	programs ProgramResolver
	opts     Options
}

func NewServer(logger zerolog.Logger, programs ProgramResolver, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	return &Server{logger: logger, programs: programs, opts: opts}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	// Le flux SSE reste ouvert : pas de timeout sur ce groupe.
	r.Get("/api/v1/events", s.handleEvents)

	var programs *ProgramsHandler
	if s.programs != nil {
		programs = NewProgramsHandler(s.programs, s.opts.BaseURL, s.opts.Catalog)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))

		if programs != nil {
			programs.Routes(r)
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/health", s.handleHealth)
			r.Get("/version", s.handleVersion)
			r.Get("/openapi.json", s.handleOpenAPI)

			if programs != nil {
				programs.APIRoutes(r)
			}
			if s.opts.Settings != nil {
				NewSettingsHandler(s.opts.Settings, s.opts.OnSettingsUpdated).Routes(r)
			}
		})
	})

	return r
}
