package pagecache

import (
	"encoding/json"
	"net/http"

	cachekey "github.com/always-cache/pagecache/pkg/cache-key"

	"github.com/go-chi/chi/v5"
)

type invalidateRequest struct {
	Prefixes []string `json:"prefixes"`
	Keys     []string `json:"keys"`
}

type invalidateResponse struct {
	Removed int `json:"removed"`
}

type keysResponse struct {
	Keys []string `json:"keys"`
}

type refreshRequest struct {
	Path string `json:"path"`
}

type refreshResponse struct {
	Stored bool   `json:"stored"`
	Error  string `json:"error,omitempty"`
}

// AdminHandler returns the administrative surface of the cache.
// It is meant to be mounted under the admin prefix, which the cache never serves from.
//
//	POST /invalidate  {"prefixes": ["/blog"], "keys": ["/"]}  -> {"removed": n}
//	POST /clear                                               -> 204
//	GET  /keys                                                -> {"keys": [...]}
//	POST /refresh     {"path": "/blog"}                       -> {"stored": true}
func (c *Cache) AdminHandler() http.Handler {
	r := chi.NewRouter()
	r.Post("/invalidate", c.handleInvalidate)
	r.Post("/clear", c.handleClear)
	r.Get("/keys", c.handleKeys)
	r.Post("/refresh", c.handleRefresh)
	return r
}

func (c *Cache) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var body invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(body.Prefixes) == 0 && len(body.Keys) == 0 {
		http.Error(w, "Nothing to invalidate", http.StatusBadRequest)
		return
	}
	removed := c.InvalidateRoutes(body.Prefixes...)
	for _, path := range body.Keys {
		if _, ok := c.store.Get(cachekey.KeyFromURI(path)); ok {
			removed++
		}
		c.Invalidate(path)
	}
	writeJSON(w, http.StatusOK, invalidateResponse{Removed: removed})
}

func (c *Cache) handleClear(w http.ResponseWriter, r *http.Request) {
	c.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

func (c *Cache) handleKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, keysResponse{Keys: c.store.Keys()})
}

func (c *Cache) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	stored, err := c.Refresh(r.Context(), body.Path)
	if err != nil {
		c.log.Warn().Err(err).Str("path", body.Path).Msg("Admin refresh failed")
		writeJSON(w, http.StatusBadGateway, refreshResponse{Stored: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Stored: stored})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
