package curi

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Directive is a scheduling hint for the frontier. Lower values are more
// urgent.
type Directive int

// Scheduling directives.
const (
	Highest Directive = iota
	High
	Medium
	Normal
)

func (d Directive) String() string {
	switch d {
	case Highest:
		return "HIGHEST"
	case High:
		return "HIGH"
	case Medium:
		return "MEDIUM"
	case Normal:
		return "NORMAL"
	}
	return fmt.Sprintf("Directive(%d)", int(d))
}

// Subject is anything a decision rule can evaluate: a bare Candidate or a
// CrawlURI carrying fetch state.
type Subject interface {
	Core() *Candidate
}

// Candidate is a discovered URI with its provenance and attribute bag.
type Candidate struct {
	uri        *url.URL
	path       string
	hasPath    bool
	via        *url.URL
	viaContext string
	seed       bool
	directive  Directive
	forceFetch bool
	classKey   string
	attrs      *Attrs
}

func newCandidate(u *url.URL) *Candidate {
	return &Candidate{uri: u, directive: Normal, attrs: NewAttrs()}
}

// Core implements Subject.
func (c *Candidate) Core() *Candidate { return c }

// URI returns the normalized identity of the record.
func (c *Candidate) URI() *url.URL { return c.uri }

// String returns the URI string.
func (c *Candidate) String() string {
	if c.uri == nil {
		return ""
	}
	return c.uri.String()
}

// PathFromSeed returns the hop path. It is empty both for seeds and for
// records that never had a path assigned; HasPath tells them apart.
func (c *Candidate) PathFromSeed() string { return c.path }

// HasPath reports whether a hop path has been assigned.
func (c *Candidate) HasPath() bool { return c.hasPath }

// SetPathFromSeed assigns the hop path.
func (c *Candidate) SetPathFromSeed(p string) {
	c.path = p
	c.hasPath = true
}

// HopCount is the number of hops from the nearest seed.
func (c *Candidate) HopCount() int { return len(c.path) }

// LastHop returns the most recent hop code.
func (c *Candidate) LastHop() (Hop, bool) {
	if len(c.path) == 0 {
		return 0, false
	}
	return Hop(c.path[len(c.path)-1]), true
}

// Via returns the referring URI, or nil.
func (c *Candidate) Via() *url.URL { return c.via }

// SetVia replaces the referring URI.
func (c *Candidate) SetVia(v *url.URL) { c.via = v }

// ViaContext returns the discovery context recorded on the referrer.
func (c *Candidate) ViaContext() string { return c.viaContext }

// FlattenVia returns the via as a string, or "" when there is none.
func (c *Candidate) FlattenVia() string {
	if c.via == nil {
		return ""
	}
	return c.via.String()
}

// IsSeed reports whether the record is a seed.
func (c *Candidate) IsSeed() bool { return c.seed }

// MarkSeed flags the record as a seed. An unassigned path becomes empty.
// The via is left in place so redirect-created seeds stay recognizable.
func (c *Candidate) MarkSeed() { c.SetSeed(true) }

// SetSeed sets or clears the seed flag.
func (c *Candidate) SetSeed(seed bool) {
	c.seed = seed
	if seed && !c.hasPath {
		c.path = ""
		c.hasPath = true
	}
}

func (c *Candidate) SchedulingDirective() Directive { return c.directive }

func (c *Candidate) SetSchedulingDirective(d Directive) { c.directive = d }

// NeedsImmediateScheduling reports a HIGH directive.
func (c *Candidate) NeedsImmediateScheduling() bool { return c.directive == High }

// NeedsSoonScheduling reports a MEDIUM directive.
func (c *Candidate) NeedsSoonScheduling() bool { return c.directive == Medium }

// ForceFetch reports whether the URI should be fetched even if already seen.
func (c *Candidate) ForceFetch() bool { return c.forceFetch }

func (c *Candidate) SetForceFetch(b bool) { c.forceFetch = b }

// ClassKey returns the frontier grouping key, or "" if unassigned.
func (c *Candidate) ClassKey() string { return c.classKey }

// SetClassKey assigns the class key. The key is fixed once set: a later
// call with a different value is ignored and reports false.
func (c *Candidate) SetClassKey(key string) bool {
	if c.classKey != "" && c.classKey != key {
		return false
	}
	c.classKey = key
	return true
}

// Attrs returns the record's attribute bag.
func (c *Candidate) Attrs() *Attrs {
	if c.attrs == nil {
		c.attrs = NewAttrs()
	}
	return c.attrs
}

// HeritableKeys returns the registered heritable keys, registry key first.
func (c *Candidate) HeritableKeys() []string {
	reg, _ := Object[[]string](c.attrs, KeyHeritable)
	return reg
}

// MakeHeritable registers key so that its value is copied into records
// promoted from this one.
func (c *Candidate) MakeHeritable(key string) {
	reg := c.HeritableKeys()
	if reg == nil {
		c.Attrs().Put(KeyHeritable, []string{KeyHeritable, key})
		return
	}
	if slices.Contains(reg, key) {
		return
	}
	// The slice may be shared with ancestors and descendants, so copy.
	next := make([]string, len(reg), len(reg)+1)
	copy(next, reg)
	c.Attrs().Put(KeyHeritable, append(next, key))
}

// MakeNonHeritable unregisters key. When only the registry key itself
// would remain, the registry is removed.
func (c *Candidate) MakeNonHeritable(key string) {
	reg := c.HeritableKeys()
	if reg == nil {
		return
	}
	i := slices.Index(reg, key)
	if i < 0 {
		return
	}
	next := slices.Delete(slices.Clone(reg), i, i+1)
	if len(next) <= 1 {
		c.attrs.Remove(KeyHeritable)
		return
	}
	c.attrs.Put(KeyHeritable, next)
}

// TransHops counts hops from the tail of the path back to, but not
// including, the most recent navlink.
func (c *Candidate) TransHops() int {
	n := 0
	for i := len(c.path) - 1; i >= 0; i-- {
		if Hop(c.path[i]) == NavlinkHop {
			break
		}
		n++
	}
	return n
}

// IsLocation reports whether the record was reached by a redirect.
func (c *Candidate) IsLocation() bool {
	h, ok := c.LastHop()
	return ok && h == ReferHop
}

// IsPrerequisite reports whether the record was reached as a prerequisite.
func (c *Candidate) IsPrerequisite() bool {
	h, ok := c.LastHop()
	return ok && h == PrerequisiteHop
}

// SameDomainAs is a coarse domain check: this host is reduced to its last
// two labels and other's host must end with the result.
func (c *Candidate) SameDomainAs(other *Candidate) bool {
	if c.uri == nil || other == nil || other.uri == nil {
		return false
	}
	domain := c.uri.Hostname()
	if domain == "" {
		return false
	}
	for strings.LastIndexByte(domain, '.') > strings.IndexByte(domain, '.') {
		domain = domain[strings.IndexByte(domain, '.')+1:]
	}
	host := other.uri.Hostname()
	if host == "" {
		return false
	}
	return strings.HasSuffix(host, domain)
}

// Report renders "<kind> <uri> <path> <via>" for crawl reports.
func (c *Candidate) Report() string {
	return c.report("Candidate")
}

func (c *Candidate) report(kind string) string {
	return kind + " " + c.String() + " " + c.path + " " + c.FlattenVia()
}

// ParseCandidate reads the text form "uri [hops [via [context]]]", where
// "-" stands for an absent field.
func ParseCandidate(s string) (*Candidate, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("parse candidate: empty input")
	}
	u, err := ParseURI(fields[0])
	if err != nil {
		return nil, fmt.Errorf("parse candidate: %w", err)
	}
	c := newCandidate(u)
	c.hasPath = true
	if len(fields) > 1 && fields[1] != "-" {
		c.path = fields[1]
	}
	if len(fields) > 2 && fields[2] != "-" {
		via, err := ParseURI(fields[2])
		if err != nil {
			return nil, fmt.Errorf("parse candidate via: %w", err)
		}
		c.via = via
	}
	if len(fields) > 3 && fields[3] != "-" {
		c.viaContext = fields[3]
	}
	return c, nil
}

func (c *Candidate) inheritFrom(parent *Candidate) {
	keys := parent.HeritableKeys()
	if keys == nil {
		return
	}
	c.Attrs().CopyKeysFrom(keys, parent.attrs)
}
