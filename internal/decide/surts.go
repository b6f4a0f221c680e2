package decide

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cast"

	"github.com/JakeFAU/crawlscope/internal/curi"
	"github.com/JakeFAU/crawlscope/internal/settings"
	"github.com/JakeFAU/crawlscope/internal/surt"
)

// SURT scope parameters.
const (
	ParamSurtsSourceFile     = "surts-source-file"
	ParamSeedsAsSurtPrefixes = "seeds-as-surt-prefixes"
	ParamAlsoCheckVia        = "also-check-via"
	ParamHostOrDomainScope   = "host-or-domain-scope"
)

// SurtMode selects how a SurtRule shapes and applies its prefixes.
type SurtMode int

// SURT rule modes.
const (
	// SurtPrefixed matches URIs under any configured prefix.
	SurtPrefixed SurtMode = iota
	// OnHosts matches URIs on any host named by a prefix.
	OnHosts
	// OnDomains matches URIs in any domain named by a prefix.
	OnDomains
	// NotOnHosts matches URIs on none of the prefix hosts.
	NotOnHosts
	// NotOnDomains matches URIs in none of the prefix domains.
	NotOnDomains
	// ScopePlusOne matches URIs whose host or domain, or whose referrer's,
	// is named by a prefix.
	ScopePlusOne
)

// SeedListener is told about seeds added while the crawl runs.
type SeedListener interface {
	AddedSeed(u *url.URL) bool
}

// Opener opens a named source file.
type Opener func(name string) (io.ReadCloser, error)

// SurtSources supplies the inputs a SurtRule loads its prefixes from.
type SurtSources struct {
	// Seeds opens the crawl's seed list. May be nil.
	Seeds func() (io.ReadCloser, error)
	// Open resolves "surts-source-file".
	Open Opener
}

// SurtRule tests URIs against a SURT prefix set shared with concurrent
// readers through a copy-on-write holder.
type SurtRule struct {
	*Predicated
	mode     SurtMode
	holder   *surt.Holder
	convert  func(string) string
	asSeeds  bool
	checkVia bool
}

// NewSurtRule builds a rule in mode m and loads its prefixes.
func NewSurtRule(name string, d Decision, m SurtMode, p *settings.Params, src SurtSources) (*SurtRule, error) {
	r := &SurtRule{
		mode:     m,
		holder:   surt.NewHolder(nil),
		asSeeds:  globalBool(p, ParamSeedsAsSurtPrefixes, true),
		checkVia: globalBool(p, ParamAlsoCheckVia, false),
	}
	switch m {
	case OnHosts, NotOnHosts:
		r.convert = surt.ConvertPrefixToHost
	case OnDomains, NotOnDomains:
		r.convert = surt.ConvertPrefixToDomain
	case ScopePlusOne:
		r.convert = surt.ConvertPrefixToHost
		scope := ""
		if v, ok := p.Global(ParamHostOrDomainScope); ok {
			scope, _ = v.(string)
		}
		switch strings.ToLower(strings.TrimSpace(scope)) {
		case "", "host":
		case "domain":
			r.convert = surt.ConvertPrefixToDomain
		default:
			return nil, fmt.Errorf("rule %s: %s must be Host or Domain, got %q", name, ParamHostOrDomainScope, scope)
		}
	}
	if err := r.load(p, src); err != nil {
		return nil, fmt.Errorf("rule %s: %w", name, err)
	}
	r.Predicated = NewPredicated(name, d, r.matches)
	return r, nil
}

func globalBool(p *settings.Params, key string, def bool) bool {
	v, ok := p.Global(key)
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

func (r *SurtRule) load(p *settings.Params, src SurtSources) error {
	set := &surt.PrefixSet{}
	if v, ok := p.Global(ParamSurtsSourceFile); ok {
		if path, _ := v.(string); path != "" {
			if err := importFrom(src.Open, path, set); err != nil {
				return err
			}
		}
	}
	if r.asSeeds && src.Seeds != nil {
		rc, err := src.Seeds()
		if err != nil {
			return fmt.Errorf("open seeds: %w", err)
		}
		err = set.ImportFromMixed(rc, true)
		_ = rc.Close()
		if err != nil {
			return fmt.Errorf("read seeds: %w", err)
		}
	}
	if r.convert != nil {
		set.ConvertAll(r.convert)
	}
	r.holder.Store(set)
	return nil
}

func importFrom(open Opener, path string, set *surt.PrefixSet) error {
	if open == nil {
		return fmt.Errorf("no opener for %s", path)
	}
	rc, err := open(path)
	if err != nil {
		return fmt.Errorf("open surts source %s: %w", path, err)
	}
	defer func() { _ = rc.Close() }()
	if err := set.ImportFromMixed(rc, true); err != nil {
		return fmt.Errorf("read surts source %s: %w", path, err)
	}
	return nil
}

func (r *SurtRule) matches(s curi.Subject) bool {
	c := s.Core()
	switch r.mode {
	case NotOnHosts, NotOnDomains:
		return !r.contains(c.URI())
	case ScopePlusOne:
		return r.contains(c.URI()) || r.contains(c.Via())
	}
	if r.checkVia && r.contains(c.Via()) {
		return true
	}
	return r.contains(c.URI())
}

func (r *SurtRule) contains(u *url.URL) bool {
	if u == nil {
		return false
	}
	return r.holder.ContainsPrefixOf(surt.CandidateSurt(u))
}

// Mode returns the rule's mode.
func (r *SurtRule) Mode() SurtMode { return r.mode }

// AddedSeed implements SeedListener. When seeds double as prefixes, the
// seed's implied prefix joins the set.
func (r *SurtRule) AddedSeed(u *url.URL) bool {
	if !r.asSeeds || u == nil {
		return false
	}
	clone := *u
	prefix := surt.PrefixFromPlain(clone.String())
	if r.convert != nil {
		prefix = r.convert(prefix)
	}
	return r.holder.Add(prefix)
}

// Prefixes returns the current prefixes in sorted order.
func (r *SurtRule) Prefixes() []string { return r.holder.Load().Prefixes() }

// ExportTo writes the current prefixes to w, one per line.
func (r *SurtRule) ExportTo(w io.Writer) error { return r.holder.Load().ExportTo(w) }
