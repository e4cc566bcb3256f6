package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/backyonatan-alt/warmonitor/backend/internal/cache"
	"github.com/backyonatan-alt/warmonitor/backend/internal/config"
	"github.com/backyonatan-alt/warmonitor/backend/internal/store"
)

// Refresher starts a cycle on a named stream on demand.
type Refresher interface {
	Refresh(stream string) (bool, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	cfg       *config.Config
	cache     *cache.Cache
	store     store.Store
	refresher Refresher
	metrics   http.Handler
	now       func() time.Time

	limMu     sync.Mutex
	limiters  map[string]*clientLimiter
	lastSweep time.Time
}

func New(cfg *config.Config, c *cache.Cache, st store.Store, refresher Refresher, metrics http.Handler) *Server {
	if st == nil {
		st = store.Nop{}
	}
	return &Server{
		cfg:       cfg,
		cache:     c,
		store:     st,
		refresher: refresher,
		metrics:   metrics,
		now:       time.Now,
		limiters:  make(map[string]*clientLimiter),
	}
}

// Router returns the HTTP handler with all routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(s.rateLimitMiddleware)

		api.Get("/war", s.handleWar)
		api.Get("/campaigns", s.handleCampaigns)
		api.Get("/planets", s.handlePlanets)
		api.Get("/planets/{index}", s.handlePlanet)
		api.Get("/history/{planet}", s.handleHistory)
		api.Get("/major-order", s.handleMajorOrder)
		api.Get("/status", s.handleStatus)
		api.Get("/archive/latest", s.handleArchiveLatest)
		api.Post("/refresh", s.handleRefresh)
		api.Put("/selection/{index}", s.handleSelect)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
