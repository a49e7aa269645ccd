package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/app"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/buildinfo"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/httpjson"
)

// Une résolution à froid enchaîne une dizaine d'appels amont plus un par épisode.
const defaultRequestTimeout = 150 * time.Second

type healthResponse struct {
	Status      string            `json:"status"`
	Cache       map[string]int    `json:"cache,omitempty"`
	Resolutions *app.LimiterStats `json:"resolutions,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.opts.CacheStats != nil {
		stats, err := s.opts.CacheStats(r.Context())
		if err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("cache stats failed")
			httpjson.Write(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded"})
			return
		}
		resp.Cache = stats
	}
	if s.opts.ResolutionStats != nil {
		stats := s.opts.ResolutionStats()
		resp.Resolutions = &stats
	}
	httpjson.Write(w, http.StatusOK, resp)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, buildinfo.Current())
}

func accessLogFn(r *http.Request, status, size int, duration time.Duration) {
	logger := hlog.FromRequest(r)
	logger.Info().
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("http")
}
