package server

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	dnsKeyPattern   = regexp.MustCompile(`^[-_\w\.:]+$`)
	explicitPortKey = regexp.MustCompile(`^.+:[0-9]+$`)
)

// ServerKey derives the cache key of the server that serves u: the
// authority without userinfo. dns: URIs carry the looked-up name in the
// opaque part, which is used when it is a plain host name. https keys
// without a port get ":443" so they never collide with the http server on
// the same host.
func ServerKey(u *url.URL) (string, bool) {
	if u == nil {
		return "", false
	}
	key := strings.ToLower(u.Host)
	if key == "" {
		key = u.Opaque
		if key == "" {
			key = strings.TrimPrefix(u.Path, "//")
		}
		if !dnsKeyPattern.MatchString(key) {
			return "", false
		}
	}
	if strings.EqualFold(u.Scheme, "https") && !explicitPortKey.MatchString(key) {
		key += ":443"
	}
	return key, true
}

// HostKey derives the host-level cache key for u. All dns: lookups share
// the "dns:" key.
func HostKey(u *url.URL) (string, bool) {
	if u == nil {
		return "", false
	}
	if strings.EqualFold(u.Scheme, "dns") {
		return "dns:", true
	}
	host := strings.ToLower(u.Hostname())
	return host, host != ""
}
