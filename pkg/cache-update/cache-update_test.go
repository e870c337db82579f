package cacheupdate

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetCacheUpdates(t *testing.T) {
	req := httptest.NewRequest("POST", "/admin/pages/blog/hello", nil)
	header := http.Header{}
	header.Add("Cache-Update", "/blog")
	header.Add("cache-update", "/portfolio; delay=2, /")
	header.Add("Cache-Update", "related; DELAY=1")
	header.Add("Cache-Update", "/; exact, /blog/exact")

	updates := GetCacheUpdates(req, header)
	want := []CacheUpdate{
		{Path: "/blog"},
		{Path: "/portfolio", Delay: 2 * time.Second},
		{Path: "/"},
		{Path: "/admin/pages/blog/related", Delay: time.Second},
		{Path: "/", Exact: true},
		{Path: "/blog/exact"},
	}
	if len(updates) != len(want) {
		t.Fatalf("Updates are %+v", updates)
	}
	for i := range want {
		if updates[i] != want[i] {
			t.Fatalf("Update %d is %+v, expected %+v", i, updates[i], want[i])
		}
	}
}

func TestSafeRequestsHaveNoUpdates(t *testing.T) {
	header := http.Header{"Cache-Update": {"/blog"}}
	for _, method := range []string{"GET", "HEAD", "OPTIONS"} {
		if updates := GetCacheUpdates(httptest.NewRequest(method, "/", nil), header); updates != nil {
			t.Fatalf("%s produced updates %+v", method, updates)
		}
	}
	if updates := GetCacheUpdates(nil, header); updates != nil {
		t.Fatal("Nil request produced updates")
	}
	if updates := GetCacheUpdates(httptest.NewRequest("DELETE", "/", nil), http.Header{}); updates != nil {
		t.Fatal("Missing header produced updates")
	}
}

func TestGetDelay(t *testing.T) {
	tests := map[string]time.Duration{
		"/":                 0,
		"/; delay=5":        5 * time.Second,
		"/; other; delay=1": time.Second,
		"/; delay=x":        0,
	}
	for update, want := range tests {
		if got := getDelay(update); got != want {
			t.Fatalf("Delay for %q is %s", update, got)
		}
	}
}
