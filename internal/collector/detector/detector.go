// Package detector decides whether a directory page was rendered client side
// and needs a headless browser to expose its listings.
package detector

import (
	"bytes"
	"net/http"
)

// DefaultSmallPage is the body size under which script-heavy pages are
// treated as application shells.
const DefaultSmallPage = 2048

// Heuristic flags pages that look like single page application shells.
type Heuristic struct {
	SmallPage int
}

// New creates a Heuristic. smallPage <= 0 selects DefaultSmallPage.
func New(smallPage int) *Heuristic {
	if smallPage <= 0 {
		smallPage = DefaultSmallPage
	}
	return &Heuristic{SmallPage: smallPage}
}

var shellMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// NeedsRender reports whether a page fetched with the given status should be
// rendered again in a browser. Only successful responses qualify.
func (h *Heuristic) NeedsRender(status int, body []byte) bool {
	if status != http.StatusOK {
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	lower := bytes.ToLower(body)
	for _, m := range shellMarkers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	return len(body) < h.SmallPage && scriptShare(lower) >= 25
}

// scriptShare returns the percentage of the document covered by script
// elements. Unterminated tags run to the end of the document.
func scriptShare(lower []byte) int {
	var (
		open    = []byte("<script")
		closing = []byte("</script>")
		covered int
		rest    = lower
	)
	for {
		start := bytes.Index(rest, open)
		if start < 0 {
			break
		}
		end := bytes.Index(rest[start:], closing)
		if end < 0 {
			covered += len(rest) - start
			break
		}
		end += start + len(closing)
		covered += end - start
		rest = rest[end:]
	}
	return covered * 100 / len(lower)
}
