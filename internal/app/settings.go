package app

import (
	"context"
	"time"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/domain"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/ports"
)

// Plafond appliqué aux settings : toutes les sessions partagent un seul compte.
const maxConcurrentResolutions = 16

type SettingsService struct {
	repo ports.SettingsRepository
}

func NewSettingsService(repo ports.SettingsRepository) *SettingsService {
	return &SettingsService{repo: repo}
}

func (s *SettingsService) Get(ctx context.Context) (domain.Settings, error) {
	return s.repo.Get(ctx)
}

func (s *SettingsService) UpdatedAt(ctx context.Context) (time.Time, error) {
	return s.repo.UpdatedAt(ctx)
}

func (s *SettingsService) Put(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	return s.repo.Put(ctx, NormalizeSettings(settings))
}

// NormalizeSettings ramène les valeurs hors bornes aux défauts.
func NormalizeSettings(settings domain.Settings) domain.Settings {
	def := domain.DefaultSettings()
	if settings.MaxConcurrentResolutions <= 0 {
		settings.MaxConcurrentResolutions = def.MaxConcurrentResolutions
	}
	if settings.MaxConcurrentResolutions > maxConcurrentResolutions {
		settings.MaxConcurrentResolutions = maxConcurrentResolutions
	}
	if settings.EntitlementRatePerSecond < 0 {
		settings.EntitlementRatePerSecond = 0
	}
	if settings.WarmIntervalMinutes < 0 {
		settings.WarmIntervalMinutes = 0
	}
	return settings
}
