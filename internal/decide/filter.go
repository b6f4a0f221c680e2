package decide

import "github.com/JakeFAU/crawlscope/internal/curi"

// Filter is a boolean test over a fetched URI.
type Filter interface {
	Accepts(c *curi.CrawlURI) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(c *curi.CrawlURI) bool

// Accepts implements Filter.
func (f FilterFunc) Accepts(c *curi.CrawlURI) bool { return f(c) }

// DecidingFilter accepts what its rule ACCEPTs.
type DecidingFilter struct {
	Rule Rule
}

// Accepts implements Filter.
func (f *DecidingFilter) Accepts(c *curi.CrawlURI) bool {
	return f.Rule.Decide(c) == Accept
}

// FilterRule answers onTrue when every filter accepts and onFalse
// otherwise. With no filters it answers onTrue. Subjects that are not
// fetched URIs get PASS.
type FilterRule struct {
	name    string
	filters []Filter
	onTrue  Decision
	onFalse Decision
}

// NewFilterRule adapts filters to a rule.
func NewFilterRule(name string, onTrue, onFalse Decision, filters ...Filter) *FilterRule {
	return &FilterRule{name: name, filters: filters, onTrue: onTrue, onFalse: onFalse}
}

// Name implements Rule.
func (r *FilterRule) Name() string { return r.name }

// Decide implements Rule.
func (r *FilterRule) Decide(s curi.Subject) Decision {
	c, ok := fetched(s)
	if !ok {
		return Pass
	}
	for _, f := range r.filters {
		if !f.Accepts(c) {
			return r.onFalse
		}
	}
	return r.onTrue
}
