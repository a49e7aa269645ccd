package ports

import (
	"context"
	"time"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/domain"
)

type SettingsRepository interface {
	Get(ctx context.Context) (domain.Settings, error)
	Put(ctx context.Context, settings domain.Settings) (domain.Settings, error)
	// UpdatedAt vaut zéro tant que rien n'a été écrit.
	UpdatedAt(ctx context.Context) (time.Time, error)
}
