package curi

import (
	"fmt"
	"net/url"
	"slices"
)

// DefaultMaxOutlinks caps the outlinks retained per CrawlURI.
const DefaultMaxOutlinks = 6000

// ModelOptions configures a Model.
type ModelOptions struct {
	// PersistentKeys survive ProcessingCleanup alongside heritable keys.
	PersistentKeys []string
	// MaxOutlinks caps retained outlinks; zero or less means DefaultMaxOutlinks.
	MaxOutlinks int
}

// Model creates and promotes records. It holds the crawl-wide options that
// would otherwise be global state, and is safe for concurrent use.
type Model struct {
	persistentKeys []string
	maxOutlinks    int
}

// NewModel returns a Model for opts.
func NewModel(opts ModelOptions) *Model {
	maxOut := opts.MaxOutlinks
	if maxOut <= 0 {
		maxOut = DefaultMaxOutlinks
	}
	return &Model{
		persistentKeys: slices.Clone(opts.PersistentKeys),
		maxOutlinks:    maxOut,
	}
}

// MaxOutlinks returns the configured outlink cap.
func (m *Model) MaxOutlinks() int { return m.maxOutlinks }

// NewCandidate wraps an already-normalized URI with no path or via.
func (m *Model) NewCandidate(u *url.URL) *Candidate {
	return newCandidate(u)
}

// NewSeed returns a seed record for u with an empty path.
func (m *Model) NewSeed(u *url.URL) *Candidate {
	c := newCandidate(u)
	c.MarkSeed()
	return c
}

// Promote builds the record for link discovered on parent. The link
// destination is resolved against the parent URI, the hop is appended to
// the parent path and heritable attributes are shared by reference.
func (m *Model) Promote(parent Subject, link Link) (*Candidate, error) {
	p := parent.Core()
	if !link.Hop.Valid() {
		return nil, fmt.Errorf("promote %q: unknown hop %q", link.Destination, byte(link.Hop))
	}
	u, err := Resolve(p.uri, link.Destination)
	if err != nil {
		return nil, fmt.Errorf("promote: %w", err)
	}
	child := newCandidate(u)
	child.SetPathFromSeed(p.path + link.Hop.String())
	child.via = p.uri
	child.viaContext = link.Context
	child.inheritFrom(p)
	return child, nil
}

// PromoteWith is Promote followed by setting the scheduling directive and
// seed flag.
func (m *Model) PromoteWith(parent Subject, link Link, d Directive, seed bool) (*Candidate, error) {
	child, err := m.Promote(parent, link)
	if err != nil {
		return nil, err
	}
	child.SetSchedulingDirective(d)
	child.SetSeed(seed)
	return child, nil
}

// ToCrawlURI returns the crawl-time form of s. A CrawlURI is returned as is;
// a Candidate is wrapped and shares its identity and attribute bag.
func (m *Model) ToCrawlURI(s Subject, ordinal int64) *CrawlURI {
	if cu, ok := s.(*CrawlURI); ok {
		return cu
	}
	return &CrawlURI{
		Candidate:      s.Core(),
		ordinal:        ordinal,
		contentSize:    Uncalculated,
		contentLength:  Uncalculated,
		maxOutlinks:    m.maxOutlinks,
		persistentKeys: m.persistentKeys,
	}
}

// PersistentAttrs returns a fresh bag holding only the persistent and
// heritable attributes of s.
func (m *Model) PersistentAttrs(s Subject) *Attrs {
	return persistentAttrs(s.Core(), m.persistentKeys)
}
