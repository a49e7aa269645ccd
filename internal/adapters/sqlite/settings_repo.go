package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/domain"
)

const settingsKey = "default"

// SettingsRepository stocke les réglages à chaud du gateway (limiteur de
// résolutions, débit entitlement, préchauffage) en une ligne JSON.
type SettingsRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db, now: time.Now}
}

func (r *SettingsRepository) WithClock(now func() time.Time) *SettingsRepository {
	if now != nil {
		r.now = now
	}
	return r
}

func (r *SettingsRepository) Get(ctx context.Context) (domain.Settings, error) {
	s, _, err := r.load(ctx)
	return s, err
}

// UpdatedAt renvoie la date de la dernière modification effective, zéro si
// les réglages n'ont jamais été écrits.
func (r *SettingsRepository) UpdatedAt(ctx context.Context) (time.Time, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT updated_at FROM settings WHERE key = ?`, settingsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("settings: read updated_at: %w", err)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("settings: parse updated_at %q: %w", raw, err)
	}
	return t, nil
}

// load renvoie aussi la ligne brute pour que Put détecte une écriture sans effet.
// Une ligne illisible est traitée comme absente : le gateway repart des défauts.
func (r *SettingsRepository) load(ctx context.Context) (domain.Settings, []byte, error) {
	var b []byte
	err := r.db.QueryRowContext(ctx, `SELECT value_json FROM settings WHERE key = ?`, settingsKey).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultSettings(), nil, nil
	}
	if err != nil {
		return domain.Settings{}, nil, fmt.Errorf("settings: read: %w", err)
	}
	// Les champs absents d'une ligne ancienne gardent leur valeur par défaut.
	s := domain.DefaultSettings()
	if err := json.Unmarshal(b, &s); err != nil {
		return domain.DefaultSettings(), nil, nil
	}
	return s, b, nil
}

// Put enregistre settings. Réécrire les mêmes valeurs ne touche pas à
// updated_at, qui sert de Last-Modified à l'API.
func (r *SettingsRepository) Put(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	b, err := json.Marshal(settings)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("settings: encode: %w", err)
	}
	if _, current, err := r.load(ctx); err != nil {
		return domain.Settings{}, err
	} else if bytes.Equal(current, b) {
		return settings, nil
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO settings(key, value_json, updated_at)
		VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at
	`, settingsKey, b, r.now().UTC().Format(time.RFC3339))
	if err != nil {
		return domain.Settings{}, fmt.Errorf("settings: write: %w", err)
	}
	return r.Get(ctx)
}
