package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/app"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/config"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/domain"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/feed"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/httpjson"
)

const programPrefix = "/emission/"

type ProgramsHandler struct {
	programs ProgramResolver
	baseURL  string
	catalog  []config.Program
}

func NewProgramsHandler(programs ProgramResolver, baseURL string, catalog []config.Program) *ProgramsHandler {
	return &ProgramsHandler{programs: programs, baseURL: strings.TrimRight(baseURL, "/"), catalog: catalog}
}

// Routes monte les pages HTML et les flux.
func (h *ProgramsHandler) Routes(r chi.Router) {
	r.Get("/", h.index)
	r.Get("/emission/{slug}", h.page)
	r.Get("/emission/{slug}/podcast.xml", h.feed)
}

// APIRoutes monte la variante JSON sous /api/v1.
func (h *ProgramsHandler) APIRoutes(r chi.Router) {
	r.Route("/programs/{slug}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/cache", h.invalidate)
	})
}

func programPath(r *http.Request) string {
	return programPrefix + chi.URLParam(r, "slug")
}

func (h *ProgramsHandler) resolve(w http.ResponseWriter, r *http.Request) (domain.Program, bool) {
	program, err := h.programs.Program(r.Context(), programPath(r))
	if err != nil {
		writeProgramError(w, r, err)
		return domain.Program{}, false
	}
	return program, true
}

func (h *ProgramsHandler) get(w http.ResponseWriter, r *http.Request) {
	program, ok := h.resolve(w, r)
	if !ok {
		return
	}
	httpjson.Write(w, http.StatusOK, program)
}

func (h *ProgramsHandler) invalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.programs.Invalidate(r.Context(), programPath(r)); err != nil {
		writeProgramError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProgramsHandler) feed(w http.ResponseWriter, r *http.Request) {
	program, ok := h.resolve(w, r)
	if !ok {
		return
	}
	b, err := feed.Build(program, feed.Options{BaseURL: h.baseURL})
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("program_path", program.Path).Msg("feed build failed")
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// lastBuildDate change à chaque rendu : l'ETag porte sur les épisodes.
	etag := feedETag(program)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=300")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func feedETag(program domain.Program) string {
	h := sha256.New()
	h.Write([]byte(program.Path))
	h.Write([]byte{0})
	h.Write([]byte(program.Title))
	for _, ep := range program.Episodes {
		h.Write([]byte{0})
		h.Write([]byte(ep.AssetID))
		if ep.Enclosure != nil {
			h.Write([]byte(ep.Enclosure.URL))
		}
	}
	return `"` + hex.EncodeToString(h.Sum(nil)[:16]) + `"`
}

// writeProgramError traduit une erreur du pipeline en statut HTTP.
func writeProgramError(w http.ResponseWriter, r *http.Request, err error) {
	logger := hlog.FromRequest(r)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn().Err(err).Msg("program resolution timed out")
		httpjson.WriteCodedError(w, http.StatusGatewayTimeout, "timeout", "program resolution timed out")
	case errors.Is(err, app.ErrValidation):
		httpjson.WriteCodedError(w, http.StatusBadRequest, app.CodeValidation, err.Error())
	case errors.Is(err, app.ErrAuth), errors.Is(err, app.ErrNetwork), errors.Is(err, app.ErrExtraction):
		logger.Warn().Err(err).Str("code", app.ErrorCode(err)).Msg("upstream failure")
		httpjson.WriteCodedError(w, http.StatusBadGateway, app.ErrorCode(err), err.Error())
	default:
		logger.Error().Err(err).Msg("program resolution failed")
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
