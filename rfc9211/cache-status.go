// Package rfc9211 implements the Cache-Status HTTP response header field.
// See https://www.rfc-editor.org/rfc/rfc9211
package rfc9211

import (
	"fmt"
	"strings"
)

// HeaderName is the name of the response header field.
const HeaderName = "Cache-Status"

// DefaultCacheName identifies this cache in the header value.
const DefaultCacheName = "PageCache"

type Status string

const (
	StatusHit Status = "hit"
	StatusFwd Status = "fwd"
)

type FwdReason string

const (
	// The cache was configured to not handle this request.
	FwdReasonBypass FwdReason = "bypass"

	// The request method's semantics require the request to be
	// forwarded.
	FwdReasonMethod FwdReason = "method"

	// The cache did not contain any responses that matched the
	// request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"

	// The cache did not contain any responses that could be used to
	// satisfy this request.
	FwdReasonMiss FwdReason = "miss"

	// The cache was able to select a response for the request, but
	// it was stale.
	FwdReasonStale FwdReason = "stale"
)

// CacheStatus collects the parameters of one Cache-Status header entry.
type CacheStatus struct {
	// Cache name, DefaultCacheName if empty.
	Name      string
	Status    Status
	FwdReason FwdReason
	// Whether the response was stored.
	Stored bool
	// Remaining freshness in seconds. Only sent for hits.
	TimeToLive int
	Detail     string
}

// Hit marks the response as served from the cache.
func (cs *CacheStatus) Hit() {
	cs.Status = StatusHit
	cs.FwdReason = ""
}

// Forward marks the response as produced by forwarding the request for the given reason.
func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.Status = StatusFwd
	cs.FwdReason = reason
}

// IsHit reports whether the status describes a cache hit.
func (cs CacheStatus) IsHit() bool {
	return cs.Status == StatusHit
}

// String returns the header field value.
func (cs CacheStatus) String() string {
	name := cs.Name
	if name == "" {
		name = DefaultCacheName
	}
	params := []string{name}
	switch cs.Status {
	case StatusHit:
		params = append(params, string(StatusHit), fmt.Sprintf("ttl=%d", cs.TimeToLive))
	case StatusFwd:
		reason := cs.FwdReason
		if reason == "" {
			reason = FwdReasonMiss
		}
		params = append(params, "fwd="+string(reason))
	}
	if cs.Stored {
		params = append(params, "stored")
	}
	if cs.Detail != "" {
		params = append(params, "detail="+cs.Detail)
	}
	return strings.Join(params, "; ")
}
