package pagecache

import (
	"context"
	"fmt"
	"net/http"
	"time"

	cachekey "github.com/always-cache/pagecache/pkg/cache-key"
	tee "github.com/always-cache/pagecache/pkg/response-writer-tee"
)

// RefreshHeader marks regeneration requests, so the pipeline can tell them apart.
const RefreshHeader = "X-Pagecache-Refresh"

// triggerRefresh schedules a background regeneration of a stale page,
// unless one is already in flight for the key.
func (c *Cache) triggerRefresh(key string, r *http.Request, now time.Time, win windows) {
	marked, ok := c.store.TryMarkRefreshing(key, now)
	if !ok {
		c.metrics.refresh("skipped")
		return
	}
	refreshReq := anonymousRequest(context.Background(), r)
	log := c.log.With().Str("key", key).Logger()

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		var run regeneration
		// reset on every outcome, but only once the pipeline has returned; a newer entry is left alone
		defer func() {
			if run.exited != nil {
				<-run.exited
			}
			c.store.ClearRefreshing(key, marked.StoredAt)
		}()
		var err error
		if run, err = c.regenerate(key, refreshReq, win); err != nil {
			log.Warn().Err(err).Msg("Could not refresh stale page")
			return
		}
		log.Debug().Msg("Refreshed stale page")
	}()
}

// Refresh regenerates the page at path right away and reports whether it was stored.
// The existing entry, if any, is kept when regeneration fails.
func (c *Cache) Refresh(ctx context.Context, path string) (bool, error) {
	key := cachekey.KeyFromURI(path)
	req, err := cachekey.GetRequestFromKey(key)
	if err != nil {
		return false, fmt.Errorf("refresh %s: %w", key, err)
	}
	req = req.WithContext(ctx)
	req.Header.Set(RefreshHeader, "1")
	win := c.windows(req, &c.log)
	if win.disabled {
		return false, fmt.Errorf("refresh %s: %w: caching disabled by rule", key, ErrNotCacheable)
	}
	run, err := c.regenerate(key, req, win)
	return run.stored, err
}

// Wait blocks until all background regenerations have finished,
// including pipelines still running past their timeout.
func (c *Cache) Wait() {
	c.pending.Wait()
}

// regeneration is the outcome of one pipeline run.
type regeneration struct {
	stored bool
	// closed when the pipeline returns, which may be well after a timeout
	exited <-chan struct{}
}

// regenerate runs the pipeline for key, with at most one run per key at a time.
// Callers arriving while a run is in flight share its result.
func (c *Cache) regenerate(key string, r *http.Request, win windows) (regeneration, error) {
	v, err, shared := c.refreshes.Do(key, func() (interface{}, error) {
		return c.generate(key, r, win)
	})
	if shared {
		c.log.Trace().Str("key", key).Msg("Joined regeneration in flight")
	}
	run, _ := v.(regeneration)
	if err != nil {
		c.metrics.refresh("failure")
		return run, err
	}
	c.metrics.refresh("success")
	return run, nil
}

// generate runs the pipeline into a buffer and stores the page if it may be cached.
// The run is detached from the caller's cancellation, since other callers may share it,
// and is bounded by the refresh timeout only.
func (c *Cache) generate(key string, r *http.Request, win windows) (regeneration, error) {
	next := c.pipeline()
	if next == nil {
		return regeneration{}, ErrNoPipeline
	}
	start := time.Now()
	defer func() {
		c.metrics.refreshDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), c.refreshTimeout)
	defer cancel()

	rs := tee.NewResponseSaver(nil)
	rs.MaxBytes = c.maxBodyBytes
	exited := make(chan struct{})
	run := regeneration{exited: exited}
	done := make(chan interface{}, 1)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		defer close(exited)
		defer func() { done <- recover() }()
		next.ServeHTTP(rs, r.WithContext(ctx))
	}()

	select {
	case p := <-done:
		if p != nil {
			return run, fmt.Errorf("%w: %v", ErrPipelinePanic, p)
		}
	case <-ctx.Done():
		// the pipeline keeps the buffer, nothing reads it from here on
		return run, fmt.Errorf("%w after %s", ErrRefreshTimeout, c.refreshTimeout)
	}

	rs.Finish()
	if !mayStore(rs.StatusCode(), rs.Header()) {
		return run, fmt.Errorf("%w: status %d, type %q", ErrNotCacheable, rs.StatusCode(), rs.Header().Get("Content-Type"))
	}
	if !rs.Complete() {
		return run, fmt.Errorf("%w: body over %d bytes", ErrNotCacheable, c.maxBodyBytes)
	}
	c.save(key, rs, win)
	run.stored = true
	return run, nil
}

// anonymousRequest clones r for regeneration: same page, no credentials,
// and a context that outlives the request that triggered it.
func anonymousRequest(ctx context.Context, r *http.Request) *http.Request {
	req := r.Clone(ctx)
	req.Method = http.MethodGet
	req.Body = http.NoBody
	req.ContentLength = 0
	req.Header.Del("Cookie")
	req.Header.Del("Authorization")
	req.Header.Set(RefreshHeader, "1")
	return req
}
