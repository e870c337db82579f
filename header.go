package pagecache

import (
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"
)

// StaleIfError is advertised on every cached response.
const StaleIfError = 24 * time.Hour

// replayHeaders are the response headers stored with an entry and replayed on hits.
// Everything else is produced per response.
var replayHeaders = []string{"Content-Type", "Content-Language"}

type CacheControl struct {
	m map[string]string
}

func (c CacheControl) Get(directive string) (string, bool) {
	val, ok := c.m[directive]
	return val, ok
}

func (c CacheControl) Has(directive string) bool {
	_, ok := c.m[directive]
	return ok
}

// ParseCacheControl parses the directives of one or more Cache-Control header values.
// Directive names are matched case-insensitively.
func ParseCacheControl(headers ...string) CacheControl {
	m := make(map[string]string)
	for _, header := range headers {
		for _, directive := range strings.Split(header, ",") {
			directive = strings.TrimSpace(directive)
			if directive == "" {
				continue
			}
			name, val, _ := strings.Cut(directive, "=")
			m[strings.ToLower(strings.TrimSpace(name))] = strings.Trim(strings.TrimSpace(val), `"`)
		}
	}
	return CacheControl{m}
}

// FormatCacheControl returns the Cache-Control value sent with cached pages.
// A stale page is sent with a zero maxAge.
func FormatCacheControl(maxAge, stale time.Duration) string {
	return fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d, stale-if-error=%d",
		seconds(maxAge), seconds(stale), seconds(StaleIfError))
}

// seconds converts d to whole seconds, rounding down and never going below zero.
func seconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// isHTML reports whether the content type is an HTML document.
func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html"
}

// mayStore checks if a generated response may be written to the store:
// a 200 HTML page that did not opt out with no-store or private.
func mayStore(status int, header http.Header) bool {
	if status != http.StatusOK {
		return false
	}
	if !isHTML(header.Get("Content-Type")) {
		return false
	}
	cc := ParseCacheControl(header.Values("Cache-Control")...)
	return !cc.Has("no-store") && !cc.Has("private")
}

// storableHeader returns the subset of header worth replaying.
func storableHeader(header http.Header) http.Header {
	stored := make(http.Header, len(replayHeaders))
	for _, name := range replayHeaders {
		if values := header.Values(name); len(values) > 0 {
			stored[name] = append([]string(nil), values...)
		}
	}
	return stored
}

// replayHeader sets one stored header on the outgoing response.
// A failure to set it drops the header, not the response.
func replayHeader(dst http.Header, name string, values []string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	dst[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	return true
}
