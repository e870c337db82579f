package cache

import (
	"net/http"
	"time"
)

// Entry is a rendered page held in the store.
// Entries are values: a regeneration replaces the whole entry, it never edits one in place.
type Entry struct {
	// Body is the exact output of the page generator.
	// It must be treated as read-only once stored.
	Body []byte
	// Header holds the response headers that are replayed on hits.
	Header http.Header
	// StoredAt is the time the entry was written.
	// It doubles as the entry generation when clearing the refreshing flag.
	StoredAt time.Time
	// ExpireAt is the end of the freshness window.
	ExpireAt time.Time
	// StaleUntil is the end of the stale window. After it the entry counts as a miss.
	StaleUntil time.Time
	// Refreshing is set while a background regeneration for the key is in flight.
	Refreshing bool
}

// NewEntry creates an entry written at now that is fresh for ttl and
// servable as stale for a further stale duration.
// Negative durations are treated as zero so that ExpireAt <= StaleUntil always holds.
func NewEntry(body []byte, header http.Header, now time.Time, ttl, stale time.Duration) Entry {
	if ttl < 0 {
		ttl = 0
	}
	if stale < 0 {
		stale = 0
	}
	expireAt := now.Add(ttl)
	return Entry{
		Body:       body,
		Header:     header,
		StoredAt:   now,
		ExpireAt:   expireAt,
		StaleUntil: expireAt.Add(stale),
	}
}

// Fresh reports whether the entry can be served without regeneration.
func (e Entry) Fresh(now time.Time) bool {
	return now.Before(e.ExpireAt)
}

// Stale reports whether the entry is past its TTL but still inside the stale window.
func (e Entry) Stale(now time.Time) bool {
	return !now.Before(e.ExpireAt) && now.Before(e.StaleUntil)
}

// Expired reports whether the entry is past the stale window and must be treated as a miss.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.StaleUntil)
}

// Remaining returns the time left until the entry becomes stale.
// Returns 0 if already stale.
func (e Entry) Remaining(now time.Time) time.Duration {
	ttl := e.ExpireAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// TTL returns the freshness window the entry was written with.
func (e Entry) TTL() time.Duration {
	return e.ExpireAt.Sub(e.StoredAt)
}

// StaleWindow returns the stale window the entry was written with.
func (e Entry) StaleWindow() time.Duration {
	return e.StaleUntil.Sub(e.ExpireAt)
}

// clone returns a copy that shares nothing mutable with e.
func (e Entry) clone() Entry {
	c := e
	if e.Body != nil {
		c.Body = make([]byte, len(e.Body))
		copy(c.Body, e.Body)
	}
	if e.Header != nil {
		c.Header = e.Header.Clone()
	}
	return c
}
