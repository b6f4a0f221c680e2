package curi

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// ParseURI parses rawURL and normalizes it into the form used as a record's
// identity: lowercase scheme and host, punycoded host, no default port, no
// fragment, and a "/" path for hierarchical http(s) URIs without one.
func ParseURI(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse uri: %w", err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("parse uri %q: missing scheme", rawURL)
	}
	Normalize(u)
	return u, nil
}

// MustParseURI is ParseURI for literals known to be valid. It panics on error.
func MustParseURI(rawURL string) *url.URL {
	u, err := ParseURI(rawURL)
	if err != nil {
		panic(err)
	}
	return u
}

// Normalize canonicalizes u in place.
func Normalize(u *url.URL) {
	u.Scheme = strings.ToLower(u.Scheme)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Host == "" {
		return
	}
	host := strings.ToLower(u.Hostname())
	if ascii, err := idna.ToASCII(host); err == nil && ascii != "" {
		host = ascii
	}
	host = strings.TrimSuffix(host, ".")
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		u.Host = net.JoinHostPort(strings.Trim(host, "[]"), port)
	} else {
		u.Host = host
	}
	if u.Path == "" && u.Opaque == "" && (u.Scheme == "http" || u.Scheme == "https") {
		u.Path = "/"
	}
}

// Resolve resolves ref against base and normalizes the result.
func Resolve(base *url.URL, ref string) (*url.URL, error) {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, fmt.Errorf("parse reference: %w", err)
	}
	var out *url.URL
	if base == nil {
		out = r
	} else {
		out = base.ResolveReference(r)
	}
	if out.Scheme == "" {
		return nil, fmt.Errorf("resolve %q: no scheme", ref)
	}
	Normalize(out)
	return out, nil
}

// PathQuery returns the path plus query, as robots rules see it.
func PathQuery(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}
