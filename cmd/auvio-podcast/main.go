package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/adapters/httpapi"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/app"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/buildinfo"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/config"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/domain"
)

func main() {
	configPath := flag.String("config", os.Getenv("AUVIO_CONFIG"), "Fichier YAML (optionnel, surcharge l'environnement)")
	addr := flag.String("addr", "", "Adresse d'écoute (ex: 127.0.0.1:8080)")
	dbPath := flag.String("db", "", "Chemin SQLite (ex: auvio-podcast.db)")
	debug := flag.Bool("debug", false, "Logs en niveau debug")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "auvio-podcast").Logger()
	if *debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}
	log.Logger = logger

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("config", *configPath).Msg("failed to load config")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Jamais le mot de passe.
	logger.Info().
		Interface("build", buildinfo.Current()).
		Str("db", cfg.DBPath).
		Str("email", cfg.Credentials.Email).
		Int("programs", len(cfg.Programs)).
		Msg("starting")

	ctx := context.Background()
	db, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open db")
	}
	defer func() { _ = db.Close() }()

	cacheRepo := sqlite.NewCacheRepository(db.SQL)
	if n, err := cacheRepo.Purge(ctx); err != nil {
		logger.Warn().Err(err).Msg("cache purge failed")
	} else if n > 0 {
		logger.Info().Int64("purged", n).Msg("expired cache entries removed")
	}

	bus := memorybus.New()
	settingsSvc := app.NewSettingsService(sqlite.NewSettingsRepository(db.SQL))
	settings, err := settingsSvc.Get(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("settings unavailable, using defaults")
		settings = domain.DefaultSettings()
	}

	client := app.NewAuvioClient(
		logger.With().Str("component", "auvio").Logger(),
		app.Credentials{Email: cfg.Credentials.Email, Password: cfg.Credentials.Password},
	).WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout})

	// Limiteur global partagé par toutes les résolutions + hook côté API settings.
	limiter := app.NewDynamicLimiter(domain.DefaultSettings().MaxConcurrentResolutions)
	memo := app.NewMemoizer(logger.With().Str("component", "cache").Logger(), cacheRepo)
	programs := app.NewProgramService(logger, client, memo, bus, limiter, app.ProgramServiceOptions{
		Timeout:      cfg.PipelineTimeout,
		ProgramTTL:   cfg.ProgramTTL,
		EnclosureTTL: cfg.EnclosureTTL,
	})
	programs.ApplySettings(settings)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	warmer := app.NewFeedWarmer(logger.With().Str("component", "warmer").Logger(), programs, settingsSvc.Get, cfg.ProgramPaths())
	go warmer.Run(shutdownCtx)

	srv := httpapi.NewServer(logger, programs, httpapi.Options{
		BaseURL:           cfg.BaseURL,
		Catalog:           cfg.Programs,
		Settings:          settingsSvc,
		Bus:               bus,
		OnSettingsUpdated: programs.ApplySettings,
		CacheStats:        cacheRepo.Stats,
		ResolutionStats:   programs.ResolutionStats,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("base_url", cfg.BaseURL).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server crashed")
			stop()
		}
	}()

	<-shutdownCtx.Done()
	logger.Info().Msg("shutting down")
	// Ferme les flux SSE, sinon Shutdown attend leur fin.
	bus.Close()
	if n := bus.Dropped(); n > 0 {
		logger.Info().Uint64("dropped_events", n).Msg("event bus closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	logger.Info().Msg("bye")
}
