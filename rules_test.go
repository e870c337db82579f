package pagecache

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRuleFinder(t *testing.T) {
	log := zerolog.Nop()
	rules := Rules{
		Rule{Path: "/", TTL: Duration(5 * time.Second)},
		Rule{Prefix: "/portfolio", Stale: Duration(time.Hour)},
		Rule{Prefix: "/search", Query: map[string]string{"q": ""}, Disable: true},
		Rule{Prefix: "/blog/", Query: map[string]string{"page": "2"}, TTL: Duration(time.Second)},
	}

	find := func(target string) *Rule {
		return rules.find(httptest.NewRequest("GET", target, nil), &log)
	}

	if rule := find("/"); rule == nil || rule.TTL != Duration(5*time.Second) {
		t.Fatal("Incorrect rule for /")
	}
	if rule := find("/portfolio/item"); rule == nil || rule.Stale != Duration(time.Hour) {
		t.Fatal("Incorrect rule for /portfolio/item")
	}
	if rule := find("/portfolios"); rule != nil {
		t.Fatal("Prefix matched a sibling path")
	}
	if rule := find("/search?q=go"); rule == nil || !rule.Disable {
		t.Fatal("Query presence rule not found")
	}
	if rule := find("/search"); rule != nil {
		t.Fatal("Query rule matched without the parameter")
	}
	if rule := find("/blog/post?page=2"); rule == nil {
		t.Fatal("Query value rule not found")
	}
	if rule := find("/blog/post?page=3"); rule != nil {
		t.Fatal("Query value rule matched another value")
	}
}

func TestRuleApply(t *testing.T) {
	defaults := windows{ttl: time.Minute, stale: 10 * time.Minute}

	got := Rule{TTL: Duration(time.Second)}.apply(defaults)
	if got.ttl != time.Second || got.stale != 10*time.Minute || got.disabled {
		t.Fatalf("Windows are %+v", got)
	}
	got = Rule{Disable: true}.apply(defaults)
	if !got.disabled || got.ttl != time.Minute {
		t.Fatalf("Windows are %+v", got)
	}
}

func TestUnderPrefix(t *testing.T) {
	tests := []struct {
		path, prefix string
		want         bool
	}{
		{"/blog", "/blog", true},
		{"/blog/post", "/blog", true},
		{"/blogroll", "/blog", false},
		{"/blog/post", "/blog/", true},
		{"/anything", "/", true},
		{"/", "/blog", false},
	}
	for _, tt := range tests {
		if got := underPrefix(tt.path, tt.prefix); got != tt.want {
			t.Fatalf("underPrefix(%q, %q) is %v", tt.path, tt.prefix, got)
		}
	}
}
