package pagecache

import "errors"

var (
	// ErrNoPipeline is returned when the cache has not been given a pipeline to wrap.
	ErrNoPipeline = errors.New("pagecache: no pipeline")
	// ErrNotCacheable is returned when a regenerated page may not be stored.
	ErrNotCacheable = errors.New("pagecache: response not cacheable")
	// ErrRefreshTimeout is returned when regeneration did not finish in time.
	ErrRefreshTimeout = errors.New("pagecache: refresh timed out")
	// ErrPipelinePanic is returned when the pipeline panicked during regeneration.
	ErrPipelinePanic = errors.New("pagecache: pipeline panicked")
)
