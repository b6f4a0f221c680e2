package decide

import (
	"math"
	"strconv"
	"strings"

	"github.com/JakeFAU/crawlscope/internal/curi"
	"github.com/JakeFAU/crawlscope/internal/settings"
)

// Document length parameters.
const (
	ParamContentLengthThreshold = "content-length-threshold"
	ParamUseAsMidfetchFilter    = "use-as-midfetch-filter"
)

// documentLength returns the length to judge. In midfetch mode that is
// the declared Content-Length header, which must be present and numeric;
// otherwise it is the downloaded size.
func documentLength(p *settings.Params, s curi.Subject) (int64, bool) {
	c, ok := fetched(s)
	if !ok {
		return 0, false
	}
	if !p.Bool(s, ParamUseAsMidfetchFilter, true) {
		return c.ContentSize(), true
	}
	h, ok := c.ResponseHeaders()
	if !ok {
		return 0, false
	}
	raw := strings.TrimSpace(h.Get("Content-Length"))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ExceedsDocumentLength answers d when the document is longer than
// "content-length-threshold". The default of -1 matches any non-empty
// document.
func ExceedsDocumentLength(name string, d Decision, p *settings.Params) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		n, ok := documentLength(p, s)
		if !ok {
			return false
		}
		thr := p.Int64(s, ParamContentLengthThreshold, -1)
		if thr == -1 {
			thr = 0
		}
		return n > thr
	})
}

// NotExceedsDocumentLength answers d when the document is shorter than
// "content-length-threshold". The default of -1 means no limit.
func NotExceedsDocumentLength(name string, d Decision, p *settings.Params) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		n, ok := documentLength(p, s)
		if !ok {
			return false
		}
		thr := p.Int64(s, ParamContentLengthThreshold, -1)
		if thr == -1 {
			thr = math.MaxInt64
		}
		return n < thr
	})
}
