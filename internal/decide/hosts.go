package decide

import (
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/JakeFAU/crawlscope/internal/curi"
	"github.com/JakeFAU/crawlscope/internal/server"
	"github.com/JakeFAU/crawlscope/internal/settings"
)

// ParamCountryCode names the country an ExternalGeoLocation rule matches.
const ParamCountryCode = "country-code"

// CrossTopmostAssignedHop answers d when a URI leaves the registrable
// domain of the page that linked to it.
func CrossTopmostAssignedHop(name string, d Decision) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		c := s.Core()
		via := c.Via()
		if via == nil || c.URI() == nil {
			return false
		}
		here, err := publicsuffix.EffectiveTLDPlusOne(c.URI().Hostname())
		if err != nil {
			return false
		}
		there, err := publicsuffix.EffectiveTLDPlusOne(via.Hostname())
		if err != nil {
			return false
		}
		return !strings.EqualFold(here, there)
	})
}

var wwwPrefix = regexp.MustCompile(`^www\d*\.`)

func hostBasename(u *url.URL) string {
	return wwwPrefix.ReplaceAllString(strings.ToLower(u.Hostname()), "")
}

// RedirectFromRootServer answers d for a redirect away from the root page
// of another host. The target is treated as a seed from then on.
func RedirectFromRootServer(name string, d Decision, logger *zap.Logger) *Predicated {
	if logger == nil {
		logger = zap.NewNop()
	}
	return NewPredicated(name, d, func(s curi.Subject) bool {
		c := s.Core()
		via := c.Via()
		if via == nil || c.URI() == nil || !c.IsLocation() {
			return false
		}
		if hostBasename(c.URI()) == hostBasename(via) || via.EscapedPath() != "/" {
			return false
		}
		c.MarkSeed()
		logger.Info("promoting root redirect to seed",
			zap.String("uri", c.String()), zap.String("via", via.String()))
		return true
	})
}

// GeoLookup resolves the country of a host name. ok is false when the
// lookup could not be made.
type GeoLookup interface {
	CountryCode(host string) (code string, ok bool)
}

// GeoLookupFunc adapts a function to GeoLookup.
type GeoLookupFunc func(host string) (string, bool)

// CountryCode implements GeoLookup.
func (f GeoLookupFunc) CountryCode(host string) (string, bool) { return f(host) }

// ExternalGeoLocation answers d when the host's country matches
// "country-code". A country already recorded on the cached host wins over
// a fresh lookup, and a fresh answer is recorded for next time.
func ExternalGeoLocation(name string, d Decision, p *settings.Params, hosts *server.Cache, geo GeoLookup) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		want, ok := p.Required(s, ParamCountryCode)
		if !ok {
			return false
		}
		var h *server.Host
		if hosts != nil {
			h = hosts.GetHostForURI(s)
		}
		got := ""
		if h != nil {
			got = h.CountryCode()
		}
		if got == "" && geo != nil && s.Core().URI() != nil {
			if cc, ok := geo.CountryCode(s.Core().URI().Hostname()); ok {
				got = cc
				if h != nil {
					h.SetCountryCode(cc)
				}
			}
		}
		return got != "" && strings.EqualFold(got, want)
	})
}
