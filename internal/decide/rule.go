package decide

import (
	"github.com/JakeFAU/crawlscope/internal/curi"
)

// Rule renders a verdict on one subject. Rules must not panic; a Sequence
// recovers from any that do and treats them as PASS.
type Rule interface {
	Name() string
	Decide(s curi.Subject) Decision
}

// OneWay is implemented by rules that can only ever answer one non-PASS
// decision for a subject. A Sequence skips such a rule when its running
// verdict already equals that decision.
type OneWay interface {
	SinglePossibleNonPass(s curi.Subject) (Decision, bool)
}

// Predicated answers its decision when its predicate holds and PASS
// otherwise. It is one-way on its decision.
type Predicated struct {
	name     string
	decision Decision
	test     func(curi.Subject) bool
}

// NewPredicated returns a rule answering d whenever test holds.
func NewPredicated(name string, d Decision, test func(curi.Subject) bool) *Predicated {
	return &Predicated{name: name, decision: d, test: test}
}

// Name implements Rule.
func (r *Predicated) Name() string { return r.name }

// Decision returns the verdict given when the predicate holds.
func (r *Predicated) Decision() Decision { return r.decision }

// Decide implements Rule.
func (r *Predicated) Decide(s curi.Subject) Decision {
	if s != nil && r.test(s) {
		return r.decision
	}
	return Pass
}

// SinglePossibleNonPass implements OneWay.
func (r *Predicated) SinglePossibleNonPass(curi.Subject) (Decision, bool) {
	return r.decision, true
}

// Fixed answers the same decision for every subject.
type Fixed struct {
	name     string
	decision Decision
}

// NewFixed returns a rule that always answers d.
func NewFixed(name string, d Decision) *Fixed { return &Fixed{name: name, decision: d} }

// AcceptAll is a Fixed ACCEPT.
func AcceptAll(name string) *Fixed { return NewFixed(name, Accept) }

// RejectAll is a Fixed REJECT.
func RejectAll(name string) *Fixed { return NewFixed(name, Reject) }

// Name implements Rule.
func (r *Fixed) Name() string { return r.name }

// Decide implements Rule.
func (r *Fixed) Decide(curi.Subject) Decision { return r.decision }

// SinglePossibleNonPass implements OneWay.
func (r *Fixed) SinglePossibleNonPass(curi.Subject) (Decision, bool) {
	return r.decision, true
}

// RuleFunc adapts a function to Rule. It is not one-way.
type RuleFunc struct {
	name string
	fn   func(curi.Subject) Decision
}

// NewRuleFunc returns a rule backed by fn.
func NewRuleFunc(name string, fn func(curi.Subject) Decision) *RuleFunc {
	return &RuleFunc{name: name, fn: fn}
}

// Name implements Rule.
func (r *RuleFunc) Name() string { return r.name }

// Decide implements Rule.
func (r *RuleFunc) Decide(s curi.Subject) Decision { return r.fn(s) }

// fetched returns the crawl-time record behind s, if s is one.
func fetched(s curi.Subject) (*curi.CrawlURI, bool) {
	c, ok := s.(*curi.CrawlURI)
	return c, ok && c != nil
}
