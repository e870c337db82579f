package cacheupdate

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// HeaderName is the response header through which a mutation names content that changed.
const HeaderName = "Cache-Update"

var delayDirective = regexp.MustCompile(`(?i)\bdelay=(\d+)`)

// CacheUpdate represents a single `Cache-Update` entry.
type CacheUpdate struct {
	// Fully resolved path of the changed content.
	// Equivalent to `url.URL.Path`, used as a key prefix.
	Path string
	// Update delay, i.e. delay update by this duration.
	Delay time.Duration
	// Exact limits the update to the path itself instead of everything under it.
	Exact bool
}

// GetCacheUpdates gets the updates specified by the response headers.
// Only responses to unsafe requests may carry updates, anything else returns nil.
// The incoming request is used in order to resolve potentially relative update paths.
func GetCacheUpdates(req *http.Request, header http.Header) []CacheUpdate {
	if req == nil || !UnsafeRequest(req) {
		return nil
	}
	values := header.Values(HeaderName)
	if len(values) == 0 {
		return nil
	}
	updates := make([]CacheUpdate, 0, len(values))
	for _, value := range values {
		// a single header line may list several updates
		for _, update := range strings.Split(value, ",") {
			path := strings.TrimSpace(strings.Split(update, ";")[0])
			if path == "" {
				continue
			}
			updates = append(updates, CacheUpdate{
				Path:  getURL(req, path).Path,
				Delay: getDelay(update),
				Exact: isExact(update),
			})
		}
	}
	return updates
}

// UnsafeRequest reports whether the request method may change state on the server.
func UnsafeRequest(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}

// getURL resolves the possibly relative update path against the request URL.
func getURL(r *http.Request, possiblyRelativeURL string) *url.URL {
	ref, err := url.Parse(possiblyRelativeURL)
	if err != nil {
		ref = &url.URL{Path: possiblyRelativeURL}
	}
	if r.URL == nil {
		return ref
	}
	return r.URL.ResolveReference(ref)
}

// getDelay returns the delay to wait before updating the cache for from the `Cache-Update` header parameter.
// The delay directive syntax is `delay=N`, where N is the number of seconds to wait.
// Directives are separated by a semicolon.
// If no delay directive is found, it returns 0.
func getDelay(update string) time.Duration {
	if matches := delayDirective.FindStringSubmatch(update); matches != nil {
		if delay, err := strconv.Atoi(matches[1]); err == nil {
			return time.Duration(delay) * time.Second
		}
	}
	return 0
}

// isExact reports whether the update carries the `exact` parameter.
func isExact(update string) bool {
	params := strings.Split(update, ";")
	for _, param := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(param), "exact") {
			return true
		}
	}
	return false
}
