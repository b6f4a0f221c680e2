// Package settings resolves rule parameters for the URI being decided.
// Values configured on a rule apply everywhere; overrides attached to a
// host or domain replace them for URIs on that host or under that domain,
// the most specific scope winning.
package settings

import (
	"net/url"
	"slices"
	"strings"
)

// Override replaces some of one rule's parameters within one scope. Scope
// is a host name ("www.example.com") or a domain ("example.com", "org").
type Override struct {
	Scope  string         `mapstructure:"scope" json:"scope"`
	Rule   string         `mapstructure:"rule" json:"rule"`
	Params map[string]any `mapstructure:"params" json:"params"`
}

// Resolver looks up overrides. The zero value and nil have none.
type Resolver struct {
	scopes map[string]map[string]map[string]any
}

// NewResolver indexes overrides. Later entries for the same scope and rule
// replace earlier values key by key.
func NewResolver(overrides []Override) *Resolver {
	r := &Resolver{scopes: make(map[string]map[string]map[string]any)}
	for _, o := range overrides {
		scope := strings.Trim(strings.ToLower(strings.TrimSpace(o.Scope)), ".")
		if scope == "" || o.Rule == "" {
			continue
		}
		rules, ok := r.scopes[scope]
		if !ok {
			rules = make(map[string]map[string]any)
			r.scopes[scope] = rules
		}
		params, ok := rules[o.Rule]
		if !ok {
			params = make(map[string]any, len(o.Params))
			rules[o.Rule] = params
		}
		for k, v := range o.Params {
			params[strings.ToLower(k)] = v
		}
	}
	return r
}

// Lookup returns the override of rule's param that applies to u, trying
// u's host and then each enclosing domain.
func (r *Resolver) Lookup(u *url.URL, rule, param string) (any, bool) {
	if r == nil || len(r.scopes) == 0 || u == nil {
		return nil, false
	}
	for scope := strings.ToLower(u.Hostname()); scope != ""; scope = parent(scope) {
		if v, ok := r.scopes[scope][rule][param]; ok {
			return v, true
		}
	}
	return nil, false
}

// Scopes lists the scopes with overrides, sorted.
func (r *Resolver) Scopes() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.scopes))
	for s := range r.scopes {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

func parent(host string) string {
	if i := strings.IndexByte(host, '.'); i >= 0 {
		return host[i+1:]
	}
	return ""
}
