package domain

import "time"

type Settings struct {
	// Nombre max de résolutions d'enclosure en parallèle (toutes requêtes confondues).
	MaxConcurrentResolutions int `json:"maxConcurrentResolutions"`

	// Débit max d'appels entitlement par seconde. 0 = pas de limite.
	EntitlementRatePerSecond float64 `json:"entitlementRatePerSecond"`

	// Rafraîchissement des émissions configurées. 0 = désactivé.
	WarmIntervalMinutes int `json:"warmIntervalMinutes"`
}

func DefaultSettings() Settings {
	return Settings{
		MaxConcurrentResolutions: 4,
		EntitlementRatePerSecond: 0,
		WarmIntervalMinutes:      0,
	}
}

func (s Settings) WarmInterval() time.Duration {
	if s.WarmIntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(s.WarmIntervalMinutes) * time.Minute
}
