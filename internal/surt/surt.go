// Package surt implements the Sort-friendly URI Reordering Transform and
// the prefix sets used to decide scope membership.
//
// A SURT reverses the host labels of a URI inside parentheses, so that
// "http://www.example.com/a" becomes "http://(com,example,www,)/a". Sorted
// SURTs group by domain, then host, then path, and scope tests reduce to
// string prefix checks.
package surt

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/JakeFAU/crawlscope/internal/curi"
)

// scheme://, optional userinfo@, dotted-quad or other host, optional :port,
// optional path.
var uriSplitter = regexp.MustCompile(
	`^(\w+://)(?:([-\w\.!~\*'\(\)%;:&=+$,]+?)(@))?(?:(\d{1,3}(?:\.\d{1,3}){3})|(\S+?))(:\d+)?(/\S*)?$`)

var lastSegment = regexp.MustCompile(`^(.*//.*/)[^/]*`)

// FromURI returns the lowercase SURT form of s. Strings that do not look
// like hierarchical URIs are returned lowercased but otherwise unchanged.
func FromURI(s string) string {
	m := uriSplitter.FindStringSubmatch(s)
	if m == nil {
		return strings.ToLower(s)
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteString(m[1])
	b.WriteByte('(')
	if m[4] != "" {
		b.WriteString(m[4])
	} else {
		labels := strings.Split(m[5], ".")
		for i := len(labels) - 1; i >= 0; i-- {
			b.WriteString(labels[i])
			b.WriteByte(',')
		}
	}
	b.WriteString(m[6])
	if m[3] != "" {
		b.WriteString(m[3])
		b.WriteString(m[2])
	}
	b.WriteByte(')')
	b.WriteString(m[7])
	return strings.ToLower(b.String())
}

// CandidateSurt is the SURT used to test u against a prefix set. https is
// folded to http so the scheme alone never moves a URI out of scope.
func CandidateSurt(u *url.URL) string {
	if u == nil {
		return ""
	}
	return foldHTTPS(FromURI(u.String()))
}

// PrefixFromPlain derives the implied SURT prefix from a plain URI or bare
// hostname. A trailing slash is significant: "http://example.com/dir/"
// scopes to that directory while "http://example.com/dir" scopes to the
// parent of "dir", and a bare "example.com" scopes to the domain.
func PrefixFromPlain(s string) string {
	s = addImpliedHTTP(strings.TrimSpace(s))
	s = foldHTTPS(s)
	trailingSlash := strings.HasSuffix(s, "/")
	if u, err := curi.ParseURI(s); err == nil {
		s = u.String()
	}
	if !trailingSlash && strings.HasSuffix(s, "/") {
		s = s[:len(s)-1]
	}
	return asPrefix(FromURI(s))
}

// ConvertPrefixToHost widens or narrows prefix to exactly one host.
func ConvertPrefixToHost(prefix string) string {
	if strings.HasSuffix(prefix, ")") {
		return prefix
	}
	i := strings.IndexByte(prefix, ')')
	if i < 0 {
		if !strings.HasSuffix(prefix, ",") {
			prefix += ","
		}
		return prefix + ")"
	}
	return prefix[:i+1]
}

// ConvertPrefixToDomain widens prefix to the host's domain, dropping a
// leading "www" label.
func ConvertPrefixToDomain(prefix string) string {
	if i := strings.IndexByte(prefix, ')'); i >= 0 {
		prefix = prefix[:i]
	}
	return strings.TrimSuffix(prefix, "www,")
}

func asPrefix(s string) string {
	s = lastSegment.ReplaceAllString(s, "$1")
	if !strings.HasSuffix(s, "/") {
		if i := strings.LastIndexByte(s, ')'); i >= 0 {
			s = s[:i] + s[i+1:]
		}
	}
	return s
}

func foldHTTPS(s string) string {
	if strings.HasPrefix(s, "https://") {
		return "http" + s[len("https"):]
	}
	return s
}

func addImpliedHTTP(s string) string {
	if strings.Contains(s, "://") {
		return s
	}
	colon := strings.IndexByte(s, ':')
	dot := strings.IndexByte(s, '.')
	if colon < 0 || (dot >= 0 && dot < colon) {
		return "http://" + s
	}
	return s
}
