package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/domain"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/ports"
)

type ProgramServiceOptions struct {
	// Timeout borne une résolution complète. 0 = pas de borne.
	Timeout time.Duration
	// Durées de vie en cache. 0 = sans expiration.
	ProgramTTL   time.Duration
	EnclosureTTL time.Duration
}

func DefaultProgramServiceOptions() ProgramServiceOptions {
	return ProgramServiceOptions{
		Timeout:      2 * time.Minute,
		ProgramTTL:   6 * time.Hour,
		EnclosureTTL: 24 * time.Hour,
	}
}

// ProgramService assemble une émission complète : métadonnées, épisodes, et
// enclosure de chaque épisode.
type ProgramService struct {
	logger  zerolog.Logger
	client  *AuvioClient
	memo    *Memoizer
	bus     ports.EventBus
	limiter *DynamicLimiter
	opts    ProgramServiceOptions

	mu       sync.RWMutex
	throttle *rate.Limiter
}

func NewProgramService(logger zerolog.Logger, client *AuvioClient, memo *Memoizer, bus ports.EventBus, limiter *DynamicLimiter, opts ProgramServiceOptions) *ProgramService {
	if memo == nil {
		memo = NewMemoizer(logger, nil)
	}
	if limiter == nil {
		limiter = NewDynamicLimiter(domain.DefaultSettings().MaxConcurrentResolutions)
	}
	return &ProgramService{
		logger:  logger,
		client:  client,
		memo:    memo,
		bus:     bus,
		limiter: limiter,
		opts:    opts,
	}
}

// SetEntitlementRate règle le débit max des appels entitlement (par seconde,
// toutes sessions). 0 ou moins désactive la limite.
func (s *ProgramService) SetEntitlementRate(perSecond float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if perSecond <= 0 {
		s.throttle = nil
		return
	}
	if s.throttle != nil {
		s.throttle.SetLimit(rate.Limit(perSecond))
		return
	}
	s.throttle = rate.NewLimiter(rate.Limit(perSecond), 1)
}

// ApplySettings pousse les réglages modifiables à chaud.
func (s *ProgramService) ApplySettings(settings domain.Settings) {
	settings = NormalizeSettings(settings)
	s.limiter.SetLimit(settings.MaxConcurrentResolutions)
	s.SetEntitlementRate(settings.EntitlementRatePerSecond)
}

func (s *ProgramService) wait(ctx context.Context) error {
	s.mu.RLock()
	l := s.throttle
	s.mu.RUnlock()
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}

// Program résout path de bout en bout. En cas d'échec, aucune émission
// partielle n'est renvoyée.
func (s *ProgramService) Program(ctx context.Context, path string) (domain.Program, error) {
	page, err := s.client.NewPage(path)
	if err != nil {
		return domain.Program{}, err
	}
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	publish(s.bus, TopicProgramResolving, PipelineEvent{Path: path})

	program, err := s.resolve(ctx, page)
	if err != nil {
		page.logger.Warn().Err(err).Str("code", ErrorCode(err)).Msg("program resolution failed")
		publish(s.bus, TopicProgramFailed, PipelineEvent{
			Path:       path,
			Error:      err.Error(),
			Code:       ErrorCode(err),
			DurationMS: time.Since(start).Milliseconds(),
		})
		return domain.Program{}, err
	}

	page.logger.Info().Int("episodes", len(program.Episodes)).Dur("elapsed", time.Since(start)).Msg("program resolved")
	publish(s.bus, TopicProgramResolved, PipelineEvent{
		Path:       path,
		Title:      program.Title,
		Episodes:   len(program.Episodes),
		DurationMS: time.Since(start).Milliseconds(),
	})
	return program, nil
}

func (s *ProgramService) resolve(ctx context.Context, page *ProgramPage) (domain.Program, error) {
	program, err := Memoize(ctx, s.memo, NamespaceProgramData, page.path, s.opts.ProgramTTL, page.ProgramData)
	if err != nil {
		return domain.Program{}, err
	}
	// L'aperçu embarqué n'est que le dernier épisode chargé par défaut.
	program.Preview = nil

	episodes, err := page.MediaList(ctx)
	if err != nil {
		return domain.Program{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range episodes {
		assetID := episodes[i].AssetID
		g.Go(func() error {
			return s.limiter.Run(gctx, func(ctx context.Context) error {
				enclosure, err := Memoize(ctx, s.memo, NamespaceMediaEnclosure, assetID, s.opts.EnclosureTTL, func(ctx context.Context) (domain.Enclosure, error) {
					if err := s.wait(ctx); err != nil {
						return domain.Enclosure{}, err
					}
					return page.MediaEnclosure(ctx, assetID)
				})
				if err != nil {
					return err
				}
				// Chaque goroutine écrit son propre index : l'ordre du catalogue est conservé.
				episodes[i].Enclosure = &enclosure
				publish(s.bus, TopicEnclosureResolved, PipelineEvent{Path: page.path, AssetID: assetID})
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Program{}, err
	}

	program.Episodes = episodes
	return program, nil
}

// ResolutionStats renvoie l'occupation du limiteur d'enclosures.
func (s *ProgramService) ResolutionStats() LimiterStats {
	return s.limiter.Stats()
}

// Invalidate oublie les métadonnées mises en cache pour path.
// Les enclosures restent valides jusqu'à leur expiration.
func (s *ProgramService) Invalidate(ctx context.Context, path string) error {
	if _, err := ParseProgramID(path); err != nil {
		return err
	}
	return s.memo.Forget(ctx, NamespaceProgramData, path)
}
