package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/domain"
)

// FeedWarmer résout périodiquement les émissions configurées pour garder le
// cache chaud. L'intervalle vient des settings (warmIntervalMinutes) et est
// relu à chaque cycle; 0 met le warmer en veille.
type FeedWarmer struct {
	logger   zerolog.Logger
	programs *ProgramService
	settings func(ctx context.Context) (domain.Settings, error)
	paths    []string

	// PollInterval est l'attente quand le warmer est désactivé.
	PollInterval time.Duration
}

func NewFeedWarmer(logger zerolog.Logger, programs *ProgramService, settings func(ctx context.Context) (domain.Settings, error), paths []string) *FeedWarmer {
	return &FeedWarmer{
		logger:       logger,
		programs:     programs,
		settings:     settings,
		paths:        append([]string(nil), paths...),
		PollInterval: time.Minute,
	}
}

func (w *FeedWarmer) Run(ctx context.Context) {
	if len(w.paths) == 0 {
		w.logger.Info().Msg("no program configured, feed warmer idle")
		return
	}
	for {
		interval := w.interval(ctx)
		wait := interval
		if wait <= 0 {
			wait = w.PollInterval
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info().Msg("feed warmer stopped")
			return
		case <-timer.C:
		}
		if interval > 0 {
			w.WarmOnce(ctx)
		}
	}
}

func (w *FeedWarmer) interval(ctx context.Context) time.Duration {
	if w.settings == nil {
		return 0
	}
	s, err := w.settings(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("read settings failed")
		return 0
	}
	return s.WarmInterval()
}

// WarmOnce résout chaque émission configurée, séquentiellement. Un échec est
// journalisé et n'interrompt pas les suivantes. Renvoie le nombre de succès.
func (w *FeedWarmer) WarmOnce(ctx context.Context) int {
	ok := 0
	for _, path := range w.paths {
		if ctx.Err() != nil {
			return ok
		}
		program, err := w.programs.Program(ctx, path)
		if err != nil {
			w.logger.Warn().Err(err).Str("program_path", path).Msg("warm failed")
			continue
		}
		ok++
		w.logger.Debug().Str("program_path", path).Int("episodes", len(program.Episodes)).Msg("warmed")
	}
	return ok
}
