package server

import (
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/backyonatan-alt/warmonitor/backend/internal/model"
	"github.com/backyonatan-alt/warmonitor/backend/internal/scheduler"
)

func (s *Server) handleWar(w http.ResponseWriter, r *http.Request) {
	data, etag := s.cache.Get()
	if data == nil {
		writeError(w, http.StatusServiceUnavailable, "no data available yet")
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=15")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	st := s.cache.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"campaigns":        nonNil(st.Campaigns),
		"defenseCampaigns": nonNil(st.DefenseCampaigns),
		"lastUpdated":      st.LastUpdated,
	})
}

func (s *Server) handlePlanets(w http.ResponseWriter, r *http.Request) {
	st := s.cache.State()
	if sector := r.URL.Query().Get("sector"); sector != "" {
		planets, ok := st.PlanetsBySector[sector]
		if !ok {
			writeError(w, http.StatusNotFound, "unknown sector")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sector": sector, "planets": planets})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"planets":     nonNil(st.Planets),
		"sectors":     nonNil(st.Sectors),
		"lastUpdated": st.LastUpdated,
	})
}

func (s *Server) handlePlanet(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "planet index must be an integer")
		return
	}
	p, ok := s.cache.State().PlanetByIndex(index)
	if !ok {
		writeError(w, http.StatusNotFound, "planet not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "planet"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid planet name")
		return
	}
	st := s.cache.State()
	series, ok := st.History[name]
	if !ok {
		writeError(w, http.StatusNotFound, "no history for planet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"planet":    name,
		"points":    series,
		"updatedAt": st.HistoryUpdated,
	})
}

func (s *Server) handleMajorOrder(w http.ResponseWriter, r *http.Request) {
	mo := s.cache.State().MajorOrder
	if mo == nil {
		writeError(w, http.StatusNotFound, "no active major order")
		return
	}
	writeJSON(w, http.StatusOK, mo)
}

type streamView struct {
	model.StreamStatus
	ResumeInSeconds int64 `json:"resumeInSeconds,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.cache.State()
	now := s.now()

	streams := make(map[string]streamView)
	for name, ss := range s.cache.Streams() {
		v := streamView{StreamStatus: ss}
		if ss.ResumeAt != nil {
			if left := ss.ResumeAt.Sub(now); left > 0 {
				v.ResumeInSeconds = int64(math.Ceil(left.Seconds()))
			}
		}
		streams[name] = v
	}

	resp := map[string]any{
		"streams":        streams,
		"cycle":          st.Cycle,
		"lastUpdated":    st.LastUpdated,
		"historyUpdated": st.HistoryUpdated,
	}
	if st.Config != nil {
		resp["alert"] = st.Config.Alert
		resp["prominentAlert"] = st.Config.ProminentAlert
		resp["season"] = st.Config.Season
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	stream := r.URL.Query().Get("stream")
	if stream == "" {
		stream = scheduler.StreamFast
	}
	started, err := s.refresher.Refresh(stream)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !started {
		writeJSON(w, http.StatusConflict, map[string]any{
			"started": false,
			"stream":  stream,
			"reason":  "cycle in progress or backing off",
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"started": true, "stream": stream})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "planet index must be an integer")
		return
	}
	ok, err := s.cache.Select(index)
	if err != nil {
		slog.Error("failed to publish selection", "index", index, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "planet not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selectedPlanet": index})
}

func (s *Server) handleArchiveLatest(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.LatestSnapshot(r.Context())
	if err != nil {
		slog.Error("failed to load snapshot from DB", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if data == nil {
		writeError(w, http.StatusNotFound, "no archived snapshot")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	updatedAt := s.cache.UpdatedAt()

	resp := map[string]any{
		"status": "ok",
	}
	if !updatedAt.IsZero() {
		resp["lastUpdate"] = updatedAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
