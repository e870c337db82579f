package pagecache

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type Rules []Rule

// Rule changes the freshness windows for a part of the site.
// Path matches a single page, Prefix a subtree; a rule with neither matches every page.
// Query lists query parameters that must be present, and optionally have a given value.
type Rule struct {
	Prefix  string            `yaml:"prefix"`
	Path    string            `yaml:"path"`
	Query   map[string]string `yaml:"query"`
	TTL     Duration          `yaml:"ttl"`
	Stale   Duration          `yaml:"stale"`
	Disable bool              `yaml:"disable"`
}

// windows holds the freshness windows that apply to one page.
type windows struct {
	ttl      time.Duration
	stale    time.Duration
	disabled bool
}

// apply overrides the windows the rule sets. Zero durations keep the default.
func (rule Rule) apply(w windows) windows {
	if rule.TTL > 0 {
		w.ttl = time.Duration(rule.TTL)
	}
	if rule.Stale > 0 {
		w.stale = time.Duration(rule.Stale)
	}
	w.disabled = rule.Disable
	return w
}

// find returns the first rule matching the request, or nil.
func (r Rules) find(req *http.Request, log *zerolog.Logger) *Rule {
rulesLoop:
	for i, rule := range r {
		if rule.Path != "" && rule.Path != req.URL.Path {
			continue
		}
		if rule.Prefix != "" && !underPrefix(req.URL.Path, rule.Prefix) {
			continue
		}
		if len(rule.Query) > 0 {
			qry := req.URL.Query()
			for name, value := range rule.Query {
				if value == "" && !qry.Has(name) {
					continue rulesLoop
				} else if value != "" && qry.Get(name) != value {
					continue rulesLoop
				}
			}
		}
		log.Trace().Int("rule", i).Msg("Rule matched")
		return &r[i]
	}
	return nil
}

// underPrefix reports whether path is prefix itself or lies below it.
// "/blog" covers "/blog" and "/blog/post" but not "/blogroll".
func underPrefix(path, prefix string) bool {
	if prefix == "" || prefix == "/" {
		return true
	}
	if len(path) < len(prefix) || path[:len(prefix)] != prefix {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/' || prefix[len(prefix)-1] == '/'
}
