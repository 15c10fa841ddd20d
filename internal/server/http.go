package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
func (s *StatusServer) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/groups", s.handleListGroups)
	mux.HandleFunc("POST /v1/groups/{name}/reload", s.handleReloadGroup)
	mux.HandleFunc("GET /v1/roster", s.handleRoster)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.Handle("GET /metrics", promhttp.Handler())
	return AuthMiddleware(s.opts.Token, mux)
}

// handleHealth handles GET /v1/health.
func (s *StatusServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus handles GET /v1/status.
func (s *StatusServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

// handleListGroups handles GET /v1/groups.
func (s *StatusServer) handleListGroups(w http.ResponseWriter, _ *http.Request) {
	loaded := []string{}
	if s.opts.Loaded != nil {
		loaded = s.opts.Loaded()
	}
	available := []string{}
	if s.opts.Groups != nil {
		available = s.opts.Groups.Names()
	}
	writeJSON(w, http.StatusOK, map[string][]string{"loaded": loaded, "available": available})
}

// handleReloadGroup handles POST /v1/groups/{name}/reload. The name "all"
// reloads every loaded group.
func (s *StatusServer) handleReloadGroup(w http.ResponseWriter, r *http.Request) {
	if s.opts.Groups == nil {
		writeError(w, http.StatusServiceUnavailable, "group management not available")
		return
	}
	name := r.PathValue("name")
	var err error
	if name == "all" {
		err = s.opts.Groups.ReloadAll(r.Context(), "http")
	} else {
		err = s.opts.Groups.Reload(r.Context(), "http", name)
	}
	if err != nil {
		s.logger.Warn("server: reload failed", "group", name, "err", err)
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reloaded": name})
}

// handleRoster handles GET /v1/roster. The optional stale_threshold_secs
// query parameter (default 30 minutes) hides users idle for longer.
func (s *StatusServer) handleRoster(w http.ResponseWriter, r *http.Request) {
	if s.opts.Presence == nil {
		writeJSON(w, http.StatusOK, map[string]any{"users": []any{}})
		return
	}
	staleThreshold := 30 * time.Minute
	if v := r.URL.Query().Get("stale_threshold_secs"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			writeError(w, http.StatusBadRequest, "stale_threshold_secs must be a non-negative integer")
			return
		}
		staleThreshold = time.Duration(secs) * time.Second
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": s.opts.Presence.Roster(staleThreshold)})
}

// AuthMiddleware wraps an http.Handler and checks the Authorization header for
// a valid Bearer token. When token is empty, auth is disabled and all requests
// pass through. GET /v1/health and GET /metrics are always exempt.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && (r.URL.Path == "/v1/health" || r.URL.Path == "/metrics") {
			next.ServeHTTP(w, r)
			return
		}
		if err := checkBearer(r.Header.Get("Authorization"), token); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func checkBearer(header, token string) error {
	if header == "" {
		return errors.New("missing authorization header")
	}
	provided, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return errors.New("invalid authorization scheme")
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
		return errors.New("invalid token")
	}
	return nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
