package pagecache

import (
	"net/http"
	"testing"
	"time"
)

func TestFormatCacheControl(t *testing.T) {
	tests := []struct {
		maxAge, stale time.Duration
		want          string
	}{
		{time.Minute, 10 * time.Minute, "public, max-age=60, stale-while-revalidate=600, stale-if-error=86400"},
		{0, 10 * time.Minute, "public, max-age=0, stale-while-revalidate=600, stale-if-error=86400"},
		{29*time.Second + 900*time.Millisecond, 0, "public, max-age=29, stale-while-revalidate=0, stale-if-error=86400"},
		{-time.Second, time.Second, "public, max-age=0, stale-while-revalidate=1, stale-if-error=86400"},
	}
	for _, tt := range tests {
		if got := FormatCacheControl(tt.maxAge, tt.stale); got != tt.want {
			t.Fatalf("Cache-Control is %q, expected %q", got, tt.want)
		}
	}
}

func TestParseCacheControl(t *testing.T) {
	cc := ParseCacheControl("public, Max-Age=60", `no-cache="set-cookie"`)
	if val, ok := cc.Get("max-age"); !ok || val != "60" {
		t.Fatalf("max-age is %q", val)
	}
	if val, _ := cc.Get("no-cache"); val != "set-cookie" {
		t.Fatalf("no-cache is %q", val)
	}
	if !cc.Has("public") || cc.Has("private") {
		t.Fatal("Directive presence wrong")
	}
}

func TestMayStore(t *testing.T) {
	html := http.Header{"Content-Type": {"text/html; charset=utf-8"}}
	tests := []struct {
		name   string
		status int
		header http.Header
		want   bool
	}{
		{"html page", 200, html, true},
		{"not found", 404, html, false},
		{"redirect", 301, html, false},
		{"json", 200, http.Header{"Content-Type": {"application/json"}}, false},
		{"no content type", 200, http.Header{}, false},
		{"no-store", 200, http.Header{"Content-Type": {"text/html"}, "Cache-Control": {"no-store"}}, false},
		{"private", 200, http.Header{"Content-Type": {"text/html"}, "Cache-Control": {"private, max-age=0"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mayStore(tt.status, tt.header); got != tt.want {
				t.Fatalf("mayStore is %v", got)
			}
		})
	}
}

func TestStorableHeader(t *testing.T) {
	h := http.Header{
		"Content-Type":     {"text/html"},
		"Content-Language": {"en"},
		"Set-Cookie":       {"a=b"},
		"X-Request-Id":     {"1"},
	}
	stored := storableHeader(h)
	if len(stored) != 2 || stored.Get("Content-Language") != "en" {
		t.Fatalf("Stored headers are %v", stored)
	}
	stored.Set("Content-Type", "text/plain")
	if h.Get("Content-Type") != "text/html" {
		t.Fatal("Stored header aliases the original")
	}
}
