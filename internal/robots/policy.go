// Package robots resolves per-server robots exclusion policies and answers
// whether a fetch is excluded under one of five honoring strategies.
package robots

import (
	"bufio"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"

	"github.com/JakeFAU/crawlscope/internal/curi"
)

// Kind tags a Policy.
type Kind int

// Policy kinds.
const (
	KindAllowAll Kind = iota
	KindDenyAll
	KindNormal
)

func (k Kind) String() string {
	switch k {
	case KindAllowAll:
		return "allow-all"
	case KindDenyAll:
		return "deny-all"
	case KindNormal:
		return "normal"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "allow-all":
		*k = KindAllowAll
	case "deny-all":
		*k = KindDenyAll
	case "normal":
		*k = KindNormal
	default:
		return fmt.Errorf("unknown robots policy kind %q", b)
	}
	return nil
}

// Policy is a resolved robots exclusion policy for one server. The agent
// match cache is guarded by the policy's own mutex, so a Policy may be
// shared by every fetch against its server.
type Policy struct {
	kind     Kind
	body     string
	data     *robotstxt.RobotsData
	agents   []string
	honoring Honoring

	mu      sync.Mutex
	matched bool
	lastUA  string
	toTest  []string
}

// AllowAll returns a policy that excludes nothing.
func AllowAll() *Policy { return &Policy{kind: KindAllowAll} }

// DenyAll returns a policy that excludes everything.
func DenyAll() *Policy { return &Policy{kind: KindDenyAll} }

// PolicyFor parses a robots.txt body under h. A file that disallows
// nothing yields an allow-all policy.
func PolicyFor(body []byte, h Honoring) (*Policy, error) {
	text := string(body)
	data, err := robotstxt.FromString(text)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	if allowsAll(text) {
		return AllowAll(), nil
	}
	p := &Policy{
		kind:     KindNormal,
		body:     text,
		data:     data,
		agents:   declaredAgents(text),
		honoring: h,
	}
	switch h.Type {
	case MostFavored:
		p.toTest = slices.Clone(p.agents)
	case MostFavoredSet:
		for _, ua := range h.UserAgents {
			if tok, ok := firstContained(p.agents, ua); ok {
				p.toTest = append(p.toTest, tok)
			}
		}
	}
	return p, nil
}

// Kind returns the policy's tag.
func (p *Policy) Kind() Kind { return p.kind }

// Body returns the robots text a normal policy was parsed from.
func (p *Policy) Body() string { return p.body }

// Agents returns the declared user-agent tokens in file order, lowercased.
func (p *Policy) Agents() []string { return slices.Clone(p.agents) }

// Disallows reports whether c may not be fetched by userAgent. Under the
// most-favored strategies with masquerading on, c's user agent is set to
// the token whose section decided the verdict.
func (p *Policy) Disallows(c *curi.CrawlURI, userAgent string) bool {
	switch p.kind {
	case KindAllowAll:
		return false
	case KindDenyAll:
		return true
	}
	toTest := p.agentsToTest(userAgent)
	path := "/"
	if c != nil && c.URI() != nil {
		path = curi.PathQuery(c.URI())
	}
	disallow := false
	var ua string
	for _, ua = range toTest {
		if p.data.FindGroup(ua).Test(path) {
			disallow = false
			break
		}
		disallow = true
	}
	// The wildcard section names no agent to present.
	if c != nil && ua != "" && ua != "*" && p.honoring.Masquerade && p.honoring.mostFavored() {
		c.SetUserAgent(ua)
	}
	return disallow
}

func (p *Policy) agentsToTest(userAgent string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.honoring.recomputesPerAgent() && (!p.matched || p.lastUA != userAgent) {
		p.matched = true
		p.lastUA = userAgent
		p.toTest = nil
		if tok, ok := firstContained(p.agents, userAgent); ok {
			p.toTest = []string{tok}
		}
	}
	return p.toTest
}

// CrawlDelay returns the crawl delay in seconds that applies to userAgent,
// or -1 if none is declared.
func (p *Policy) CrawlDelay(userAgent string) float64 {
	if p.data == nil {
		return -1
	}
	tok, ok := firstContained(p.agents, userAgent)
	if !ok {
		return -1
	}
	d := p.data.FindGroup(tok).CrawlDelay
	if d <= 0 {
		return -1
	}
	return d.Seconds()
}

// Snapshot is the persisted form of a Policy.
type Snapshot struct {
	Kind Kind   `json:"kind"`
	Body string `json:"body,omitempty"`
}

// Snapshot captures the policy's kind and, for normal policies, its text.
func (p *Policy) Snapshot() Snapshot {
	return Snapshot{Kind: p.kind, Body: p.body}
}

// FromSnapshot rebuilds a policy. The agent cache starts empty.
func FromSnapshot(s Snapshot, h Honoring) (*Policy, error) {
	switch s.Kind {
	case KindAllowAll:
		return AllowAll(), nil
	case KindDenyAll:
		return DenyAll(), nil
	case KindNormal:
		return PolicyFor([]byte(s.Body), h)
	}
	return nil, fmt.Errorf("restore robots policy: unknown kind %d", int(s.Kind))
}

// firstContained returns the first token that occurs in ua, ignoring case.
// "*" occurs in everything.
func firstContained(tokens []string, ua string) (string, bool) {
	lower := strings.ToLower(ua)
	for _, tok := range tokens {
		if tok == "*" || strings.Contains(lower, tok) {
			return tok, true
		}
	}
	return "", false
}

// directives yields (field, value) pairs with comments stripped and the
// field lowercased.
func directives(text string, fn func(field, value string)) {
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fn(strings.ToLower(strings.TrimSpace(field)), strings.TrimSpace(value))
	}
}

func declaredAgents(text string) []string {
	var out []string
	directives(text, func(field, value string) {
		if field != "user-agent" && field != "useragent" {
			return
		}
		tok := strings.ToLower(value)
		if tok != "" && !slices.Contains(out, tok) {
			out = append(out, tok)
		}
	})
	return out
}

func allowsAll(text string) bool {
	all := true
	directives(text, func(field, value string) {
		if field == "disallow" && value != "" {
			all = false
		}
	})
	return all
}
