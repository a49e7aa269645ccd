package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/app"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/domain"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/httpjson"
)

const maxSettingsBody = 4 << 10

// SettingsHandler expose les réglages modifiables à chaud.
type SettingsHandler struct {
	settings *app.SettingsService
	onPut    func(domain.Settings)
}

func NewSettingsHandler(settings *app.SettingsService, onPut func(domain.Settings)) *SettingsHandler {
	return &SettingsHandler{settings: settings, onPut: onPut}
}

func (h *SettingsHandler) Routes(r chi.Router) {
	r.Route("/settings", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.put)
	})
}

func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	current, err := h.settings.Get(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("read settings failed")
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	updatedAt, err := h.settings.UpdatedAt(r.Context())
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("read settings timestamp failed")
	} else if !updatedAt.IsZero() {
		w.Header().Set("Last-Modified", updatedAt.UTC().Format(http.TimeFormat))
	}
	httpjson.Write(w, http.StatusOK, current)
}

// put remplace les réglages. Les champs absents reprennent les valeurs par
// défaut, les valeurs hors bornes sont ramenées dans les bornes.
func (h *SettingsHandler) put(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxSettingsBody))
	dec.DisallowUnknownFields()
	incoming := domain.DefaultSettings()
	if err := dec.Decode(&incoming); err != nil {
		httpjson.WriteCodedError(w, http.StatusBadRequest, app.CodeValidation, "invalid settings: "+err.Error())
		return
	}

	updated, err := h.settings.Put(r.Context(), incoming)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("write settings failed")
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	hlog.FromRequest(r).Info().
		Int("max_concurrent_resolutions", updated.MaxConcurrentResolutions).
		Float64("entitlement_rate", updated.EntitlementRatePerSecond).
		Int("warm_interval_minutes", updated.WarmIntervalMinutes).
		Msg("settings updated")
	if h.onPut != nil {
		h.onPut(updated)
	}
	httpjson.Write(w, http.StatusOK, updated)
}
