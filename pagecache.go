// Package pagecache serves rendered HTML pages from memory with stale-while-revalidate
// semantics. It wraps the page pipeline as a middleware: fresh pages are replayed,
// stale pages are replayed while the pipeline regenerates them in the background,
// and misses run the pipeline with the response recorded on the way out.
package pagecache

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/always-cache/pagecache/cache"
	cachekey "github.com/always-cache/pagecache/pkg/cache-key"
	cacheupdate "github.com/always-cache/pagecache/pkg/cache-update"
	tee "github.com/always-cache/pagecache/pkg/response-writer-tee"
	"github.com/always-cache/pagecache/rfc9211"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL            = time.Minute
	DefaultStale          = 10 * time.Minute
	DefaultRefreshTimeout = 15 * time.Second
	DefaultMaxBodyBytes   = 8 << 20
)

type Config struct {
	// Store holds the pages. A new MemStore is used if nil.
	Store cache.Store
	// Requests under AdminPrefix bypass the cache. Defaults to "/admin".
	AdminPrefix string
	// A non-empty SessionCookie on the request makes it bypass the cache. Defaults to "session".
	SessionCookie string
	// HasSession replaces the cookie and Authorization checks when set.
	HasSession func(*http.Request) bool
	// Freshness windows for pages not matched by a rule.
	TTL   time.Duration
	Stale time.Duration
	Rules Rules
	// RefreshTimeout bounds a single regeneration.
	RefreshTimeout time.Duration
	// MaxBodyBytes is the largest page that is stored. Larger pages are delivered
	// but not kept. Zero means DefaultMaxBodyBytes, negative means no limit.
	MaxBodyBytes int
	// Name identifies the cache in the Cache-Status header.
	Name string
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
	// Registerer receives the cache metrics. Nil keeps them private.
	Registerer prometheus.Registerer
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

type Cache struct {
	store          cache.Store
	policy         cachekey.Policy
	defaults       windows
	rules          Rules
	refreshTimeout time.Duration
	maxBodyBytes   int
	name           string
	log            zerolog.Logger
	metrics        *metrics
	now            func() time.Time

	next      atomic.Pointer[http.Handler]
	refreshes singleflight.Group
	pending   sync.WaitGroup
}

// New creates a cache. It serves nothing until Middleware hands it a pipeline.
func New(config Config) *Cache {
	c := &Cache{
		store:          config.Store,
		defaults:       windows{ttl: config.TTL, stale: config.Stale},
		rules:          config.Rules,
		refreshTimeout: config.RefreshTimeout,
		maxBodyBytes:   config.MaxBodyBytes,
		name:           config.Name,
		now:            config.Now,
	}
	if c.store == nil {
		c.store = cache.NewMemStore()
	}
	c.policy = cachekey.NewPolicy()
	if config.AdminPrefix != "" {
		c.policy.AdminPrefix = config.AdminPrefix
	}
	if config.SessionCookie != "" {
		c.policy.SessionCookie = config.SessionCookie
	}
	c.policy.HasSession = config.HasSession
	if c.defaults.ttl <= 0 {
		c.defaults.ttl = DefaultTTL
	}
	if c.defaults.stale < 0 {
		c.defaults.stale = 0
	} else if c.defaults.stale == 0 {
		c.defaults.stale = DefaultStale
	}
	if c.refreshTimeout <= 0 {
		c.refreshTimeout = DefaultRefreshTimeout
	}
	if c.maxBodyBytes == 0 {
		c.maxBodyBytes = DefaultMaxBodyBytes
	} else if c.maxBodyBytes < 0 {
		c.maxBodyBytes = 0
	}
	if c.now == nil {
		c.now = time.Now
	}
	if config.Logger != nil {
		c.log = config.Logger.With().Str("component", "pagecache").Logger()
	} else {
		c.log = log.With().Str("component", "pagecache").Logger()
	}
	c.metrics = newMetrics(config.Registerer, c.store)
	return c
}

// Middleware sets next as the page pipeline and returns the cache as its wrapper.
// A cache wraps a single pipeline; calling Middleware again replaces it.
func (c *Cache) Middleware(next http.Handler) http.Handler {
	c.next.Store(&next)
	return c
}

// Store returns the underlying page store.
func (c *Cache) Store() cache.Store {
	return c.store
}

func (c *Cache) pipeline() http.Handler {
	if next := c.next.Load(); next != nil {
		return *next
	}
	return nil
}

// request carries the state of one request through the cache.
type request struct {
	w      http.ResponseWriter
	r      *http.Request
	next   http.Handler
	log    zerolog.Logger
	status rfc9211.CacheStatus
	// set while the pipeline runs; its panics are not ours to handle
	inPipeline bool
	// set once anything may have reached the client
	responded bool
}

// ServeHTTP implements the http.Handler interface.
func (c *Cache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	next := c.pipeline()
	if next == nil {
		c.log.Error().Err(ErrNoPipeline).Msg("Cannot serve request")
		http.Error(w, "Page cache has no pipeline", http.StatusInternalServerError)
		return
	}
	req := &request{
		w:      w,
		r:      r,
		next:   next,
		log:    c.requestLogger(r),
		status: rfc9211.CacheStatus{Name: c.name},
	}
	defer c.recover(req)
	c.handle(req)
}

// recover recovers from panics in the cache layer and sends the request to the escape hatch if needed.
func (c *Cache) recover(req *request) {
	err := recover()
	if err == nil {
		return
	}
	if req.inPipeline || err == http.ErrAbortHandler {
		panic(err)
	}
	req.log.WithLevel(zerolog.PanicLevel).Interface("error", err).Msg("Panic in cache handler")
	if req.responded {
		return
	}
	c.metrics.request(outcomeEscape)
	c.escapeHatch(req)
}

// escapeHatch is a fallback that runs the pipeline as if there was no cache.
func (c *Cache) escapeHatch(req *request) {
	h := req.w.Header()
	for _, name := range replayHeaders {
		h.Del(name)
	}
	h.Del("Cache-Control")
	h.Del("Content-Length")
	status := rfc9211.CacheStatus{Name: c.name, Detail: "escape"}
	status.Forward(rfc9211.FwdReasonBypass)
	h.Set(rfc9211.HeaderName, status.String())
	req.next.ServeHTTP(req.w, req.r)
}

// handle is the main entry point for the caching middleware.
func (c *Cache) handle(req *request) {
	r := req.r
	key, skip := c.policy.Derive(r)
	if skip {
		c.bypass(req, c.policy.Reason(r))
		return
	}
	win := c.windows(r, &req.log)
	if win.disabled {
		c.bypass(req, rfc9211.FwdReasonBypass)
		return
	}

	req.log = req.log.With().Str("key", key).Logger()
	now := c.now()

	if entry, ok := c.store.Get(key); ok {
		switch {
		case entry.Fresh(now):
			c.metrics.request(outcomeFresh)
			c.serveEntry(req, entry, now, false)
			return
		case entry.Stale(now):
			c.metrics.request(outcomeStale)
			c.triggerRefresh(key, r, now, win)
			c.serveEntry(req, entry, now, true)
			return
		}
		// expired entries stay in place until the miss below replaces them
		req.log.Trace().Time("staleUntil", entry.StaleUntil).Msg("Stored page expired")
	}

	c.metrics.request(outcomeMiss)
	c.fill(req, key, win)
}

// windows returns the freshness windows for the request, after applying the first matching rule.
func (c *Cache) windows(r *http.Request, log *zerolog.Logger) windows {
	if rule := c.rules.find(r, log); rule != nil {
		return rule.apply(c.defaults)
	}
	return c.defaults
}

// serveEntry replays a stored page. Stale pages are sent with a zero max-age.
func (c *Cache) serveEntry(req *request, entry cache.Entry, now time.Time, stale bool) {
	h := req.w.Header()
	for name, values := range entry.Header {
		if !replayHeader(h, name, values) {
			req.log.Debug().Str("header", name).Msg("Could not replay stored header")
		}
	}
	maxAge := entry.Remaining(now)
	req.status.Hit()
	if stale {
		maxAge = 0
		req.status.Detail = "stale"
	}
	req.status.TimeToLive = int(seconds(maxAge))
	h.Set("Cache-Control", FormatCacheControl(maxAge, entry.StaleWindow()))
	h.Set(rfc9211.HeaderName, req.status.String())
	h.Set("Content-Length", strconv.Itoa(len(entry.Body)))

	req.log.Debug().
		Str("status", string(req.status.Status)).
		Bool("stale", stale).
		Int("ttl", req.status.TimeToLive).
		Msg("Sending stored page")

	req.responded = true
	req.w.WriteHeader(http.StatusOK)
	if _, err := req.w.Write(entry.Body); err != nil {
		req.log.Debug().Err(err).Msg("Error writing to client")
	}
}

// fill runs the pipeline for a miss and stores the page if it may be cached.
func (c *Cache) fill(req *request, key string, win windows) {
	req.status.Forward(rfc9211.FwdReasonUriMiss)
	rs := tee.NewResponseSaver(req.w)
	rs.MaxBytes = c.maxBodyBytes
	storable := false
	rs.OnWriteHeader = func(status int, header http.Header) {
		storable = mayStore(status, header)
		if storable {
			header.Set("Cache-Control", FormatCacheControl(win.ttl, win.stale))
			req.status.Stored = true
		}
		header.Set(rfc9211.HeaderName, req.status.String())
		req.responded = true
	}

	c.runPipeline(req, rs)
	rs.Finish()

	if !storable {
		req.log.Trace().Int("status", rs.StatusCode()).Msg("Response not cacheable")
		return
	}
	if !rs.Complete() {
		req.log.Debug().Int("limit", c.maxBodyBytes).Msg("Response body not stored")
		return
	}
	c.save(key, rs, win)
}

// bypass runs the pipeline without touching the store.
// Unsafe requests may name changed content with Cache-Update, which is invalidated.
func (c *Cache) bypass(req *request, reason rfc9211.FwdReason) {
	c.metrics.request(outcomeBypass)
	req.status.Forward(reason)
	req.w.Header().Set(rfc9211.HeaderName, req.status.String())
	req.log.Trace().Str("reason", string(reason)).Msg("Bypassing cache")

	if !cacheupdate.UnsafeRequest(req.r) {
		req.responded = true
		c.runPipeline(req, req.w)
		return
	}

	rs := tee.NewResponseSaver(req.w)
	rs.Discard = true
	var updates []cacheupdate.CacheUpdate
	rs.OnWriteHeader = func(status int, header http.Header) {
		// failed mutations did not change anything
		if status < http.StatusBadRequest {
			updates = cacheupdate.GetCacheUpdates(req.r, header)
		}
		header.Del(cacheupdate.HeaderName)
		req.responded = true
	}
	c.runPipeline(req, rs)
	rs.Finish()
	c.applyUpdates(updates)
}

func (c *Cache) runPipeline(req *request, w http.ResponseWriter) {
	req.inPipeline = true
	req.next.ServeHTTP(w, req.r)
	req.inPipeline = false
}

// save writes the recorded page to the store.
func (c *Cache) save(key string, rs *tee.ResponseSaver, win windows) {
	entry := cache.NewEntry(rs.Response(), storableHeader(rs.Header()), c.now(), win.ttl, win.stale)
	c.store.Set(key, entry)
	c.metrics.stores.Inc()
	c.log.Trace().Str("key", key).Time("expiry", entry.ExpireAt).Time("staleUntil", entry.StaleUntil).Msg("Cache write")
}

// requestLogger prefers the request scoped logger set up by hlog, if any.
func (c *Cache) requestLogger(r *http.Request) zerolog.Logger {
	if l := hlog.FromRequest(r); l.GetLevel() != zerolog.Disabled {
		return l.With().Str("component", "pagecache").Logger()
	}
	return c.log
}
