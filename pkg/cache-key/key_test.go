package cachekey

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/always-cache/pagecache/rfc9211"
)

func TestGetKey(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"/", "/"},
		{"/blog", "/blog"},
		{"/blog?page=2", "/blog?page=2"},
		{"/blog?page=2&tag=go", "/blog?page=2&tag=go"},
		{"http://dev.localhost/portfolio", "/portfolio"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", tt.target, nil)
		if key := GetKey(r); key != tt.want {
			t.Fatalf("Key for %s is %s, expected %s", tt.target, key, tt.want)
		}
	}
}

func TestKeyFromURIStripsFragment(t *testing.T) {
	tests := map[string]string{
		"/blog#comments":        "/blog",
		"/blog?page=2#comments": "/blog?page=2",
		"/blog?":                "/blog",
		"":                      "/",
		"#top":                  "/",
		"blog":                  "/blog",
	}
	for uri, want := range tests {
		if key := KeyFromURI(uri); key != want {
			t.Fatalf("Key for %q is %q, expected %q", uri, key, want)
		}
	}
}

func TestRequestFromKey(t *testing.T) {
	r := httptest.NewRequest("GET", "http://dev.localhost/page?x=1", nil)
	key := GetKey(r)
	req, err := GetRequestFromKey(key)
	if err != nil {
		t.Fatal(err)
	}
	if url := req.URL.String(); url != "/page?x=1" {
		t.Fatalf("Created request url for key %s is %s", key, url)
	}
	if req.Method != http.MethodGet {
		t.Fatalf("Created request method is %s", req.Method)
	}
}

func TestBypass(t *testing.T) {
	p := NewPolicy()

	withCookie := httptest.NewRequest("GET", "/blog", nil)
	withCookie.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: "abc"})
	emptyCookie := httptest.NewRequest("GET", "/blog", nil)
	emptyCookie.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: ""})
	withAuth := httptest.NewRequest("GET", "/blog", nil)
	withAuth.Header.Set("Authorization", "Bearer x")

	tests := []struct {
		name   string
		req    *http.Request
		reason rfc9211.FwdReason
	}{
		{"plain get", httptest.NewRequest("GET", "/blog", nil), ""},
		{"post", httptest.NewRequest("POST", "/blog", nil), rfc9211.FwdReasonMethod},
		{"head", httptest.NewRequest("HEAD", "/blog", nil), rfc9211.FwdReasonMethod},
		{"admin root", httptest.NewRequest("GET", "/admin", nil), rfc9211.FwdReasonBypass},
		{"admin page", httptest.NewRequest("GET", "/admin/pages", nil), rfc9211.FwdReasonBypass},
		{"admin lookalike", httptest.NewRequest("GET", "/administrators", nil), ""},
		{"session cookie", withCookie, rfc9211.FwdReasonBypass},
		{"empty session cookie", emptyCookie, ""},
		{"authorization", withAuth, rfc9211.FwdReasonBypass},
		{"nil request", nil, rfc9211.FwdReasonBypass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if reason := p.Reason(tt.req); reason != tt.reason {
				t.Fatalf("Reason is %q, expected %q", reason, tt.reason)
			}
			if bypass := p.Bypass(tt.req); bypass != (tt.reason != "") {
				t.Fatalf("Bypass is %v", bypass)
			}
		})
	}
}

func TestDerive(t *testing.T) {
	p := NewPolicy()
	key, bypass := p.Derive(httptest.NewRequest("GET", "/portfolio?x=1", nil))
	if key != "/portfolio?x=1" || bypass {
		t.Fatalf("Derived %q, %v", key, bypass)
	}
	if _, bypass := p.Derive(nil); !bypass {
		t.Fatal("Nil request not bypassed")
	}

	// every bypassed request has a reason to report
	for _, target := range []string{"/admin", "/admin/pages", "/blog"} {
		for _, method := range []string{"GET", "HEAD", "POST"} {
			r := httptest.NewRequest(method, target, nil)
			_, bypass := p.Derive(r)
			if reason := p.Reason(r); bypass != (reason != "") {
				t.Fatalf("%s %s: bypass %v with reason %q", method, target, bypass, reason)
			}
		}
	}
}

func TestCustomSessionDetection(t *testing.T) {
	p := Policy{
		HasSession: func(r *http.Request) bool { return r.Header.Get("X-User") != "" },
	}
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Basic x")
	if p.Bypass(r) {
		t.Fatal("Custom session detection ignored")
	}
	r.Header.Set("X-User", "42")
	if !p.Bypass(r) {
		t.Fatal("Custom session not detected")
	}
	// an empty admin prefix disables the admin check
	if p.Bypass(httptest.NewRequest("GET", "/admin", nil)) {
		t.Fatal("Admin bypass without prefix")
	}
}
