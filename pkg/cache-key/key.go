package cachekey

import (
	"net/http"
	"strings"

	"github.com/always-cache/pagecache/rfc9211"
)

const (
	DefaultAdminPrefix   = "/admin"
	DefaultSessionCookie = "session"

	querySeparator    = "?"
	fragmentSeparator = "#"
)

// Policy derives cache keys from requests and decides which requests
// must not touch the cache at all.
type Policy struct {
	// Path prefix of the administrative back office.
	// Requests under it always bypass the cache.
	AdminPrefix string
	// Name of the cookie that marks an authenticated session.
	SessionCookie string
	// Optional session detection. Replaces the cookie and Authorization checks when set.
	HasSession func(*http.Request) bool
}

// NewPolicy returns a policy with the default admin prefix and session cookie.
func NewPolicy() Policy {
	return Policy{
		AdminPrefix:   DefaultAdminPrefix,
		SessionCookie: DefaultSessionCookie,
	}
}

// Derive returns the cache key for the request and whether the request should bypass the cache.
// It never fails: anything it cannot make sense of is bypassed.
func (p Policy) Derive(r *http.Request) (string, bool) {
	if r == nil || r.URL == nil {
		return "", true
	}
	return GetKey(r), p.Bypass(r)
}

// Bypass reports whether the request must skip the cache entirely.
func (p Policy) Bypass(r *http.Request) bool {
	return p.Reason(r) != ""
}

// Reason returns the forward reason for a bypassed request, or an empty reason
// if the request may use the cache.
func (p Policy) Reason(r *http.Request) rfc9211.FwdReason {
	if r == nil || r.URL == nil {
		return rfc9211.FwdReasonBypass
	}
	if r.Method != http.MethodGet {
		return rfc9211.FwdReasonMethod
	}
	if p.AdminPrefix != "" && isUnder(r.URL.Path, p.AdminPrefix) {
		return rfc9211.FwdReasonBypass
	}
	if p.hasSession(r) {
		return rfc9211.FwdReasonBypass
	}
	return ""
}

func (p Policy) hasSession(r *http.Request) bool {
	if p.HasSession != nil {
		return p.HasSession(r)
	}
	if r.Header.Get("Authorization") != "" {
		return true
	}
	if p.SessionCookie != "" {
		if c, err := r.Cookie(p.SessionCookie); err == nil && c.Value != "" {
			return true
		}
	}
	return false
}

// GetKey returns the cache key for a request: the path plus the query string, if any.
// The fragment is never part of the key.
func GetKey(r *http.Request) string {
	return KeyFromURI(r.URL.RequestURI())
}

// KeyFromURI normalizes a request URI (path, optional query, optional fragment) into a cache key.
func KeyFromURI(uri string) string {
	uri, _, _ = strings.Cut(uri, fragmentSeparator)
	if uri == "" {
		return "/"
	}
	// a trailing "?" with no query is the same resource
	uri = strings.TrimSuffix(uri, querySeparator)
	if !strings.HasPrefix(uri, "/") {
		uri = "/" + uri
	}
	return uri
}

// GetRequestFromKey creates an anonymous GET request equivalent to the one that produced the key.
func GetRequestFromKey(key string) (*http.Request, error) {
	return http.NewRequest(http.MethodGet, key, nil)
}

// isUnder reports whether path equals prefix or lies below it.
// "/administrator" is not under "/admin", "/admin/pages" is.
func isUnder(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
