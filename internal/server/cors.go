package server

import (
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	clientRate  = 10
	clientBurst = 20
	// limiterTTL is how long an idle client's bucket is kept.
	limiterTTL = 10 * time.Minute
)

type clientLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigin := s.getAllowedOrigin(origin)

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, If-None-Match")
		w.Header().Set("Access-Control-Expose-Headers", "ETag")
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) getAllowedOrigin(origin string) string {
	if origin == "" {
		return s.cfg.AllowedOrigins[0]
	}

	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || origin == allowed {
			return origin
		}
	}

	// Cloudflare Pages previews
	if strings.HasSuffix(origin, ".pages.dev") {
		return origin
	}

	if strings.HasPrefix(origin, "http://localhost") {
		return origin
	}

	return s.cfg.AllowedOrigins[0]
}

// rateLimitMiddleware applies a token bucket per client IP.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter(clientIP(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limiter(ip string) *rate.Limiter {
	now := s.now()
	s.limMu.Lock()
	defer s.limMu.Unlock()
	if now.Sub(s.lastSweep) >= limiterTTL {
		for k, cl := range s.limiters {
			if now.Sub(cl.seen) >= limiterTTL {
				delete(s.limiters, k)
			}
		}
		s.lastSweep = now
	}
	cl, ok := s.limiters[ip]
	if !ok {
		cl = &clientLimiter{lim: rate.NewLimiter(clientRate, clientBurst)}
		s.limiters[ip] = cl
	}
	cl.seen = now
	return cl.lim
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
