package decide

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlscope/internal/curi"
	"github.com/JakeFAU/crawlscope/internal/metrics"
)

// Sequence applies rules in order; the last non-PASS answer wins and an
// empty sequence answers PASS. A Sequence is itself a Rule, so sequences
// nest. The rule list is fixed at construction and safe for concurrent
// use.
type Sequence struct {
	name   string
	rules  []Rule
	logger *zap.Logger
}

// NewSequence returns a sequence over rules.
func NewSequence(name string, logger *zap.Logger, rules ...Rule) *Sequence {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequence{name: name, rules: rules, logger: logger}
}

// Name implements Rule.
func (q *Sequence) Name() string { return q.name }

// Rules returns the rules in evaluation order.
func (q *Sequence) Rules() []Rule {
	out := make([]Rule, len(q.rules))
	copy(out, q.rules)
	return out
}

// Len returns the number of rules.
func (q *Sequence) Len() int { return len(q.rules) }

// Decide implements Rule. A rule whose single possible non-PASS answer
// equals the running verdict is not evaluated.
func (q *Sequence) Decide(s curi.Subject) Decision {
	running := Pass
	for _, r := range q.rules {
		if only, ok := q.singlePossible(r, s); ok && only == running {
			continue
		}
		if d := q.evaluate(r, s); d != Pass {
			running = d
		}
	}
	metrics.ObserveDecision(q.name, running.String())
	if ce := q.logger.Check(zap.DebugLevel, "sequence decided"); ce != nil {
		ce.Write(zap.String("sequence", q.name), zap.Stringer("decision", running), zap.String("uri", subjectString(s)))
	}
	return running
}

// DecideExhaustive evaluates every rule without skipping. It always agrees
// with Decide.
func (q *Sequence) DecideExhaustive(s curi.Subject) Decision {
	running := Pass
	for _, r := range q.rules {
		var d Decision
		if inner, ok := r.(*Sequence); ok {
			d = inner.DecideExhaustive(s)
		} else {
			d = q.evaluate(r, s)
		}
		if d != Pass {
			running = d
		}
	}
	return running
}

func (q *Sequence) evaluate(r Rule, s curi.Subject) (d Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.ObserveRulePanic(r.Name())
			q.logger.Error("rule panicked",
				zap.String("sequence", q.name),
				zap.String("rule", r.Name()),
				zap.String("uri", subjectString(s)),
				zap.String("panic", fmt.Sprint(rec)),
			)
			d = Pass
		}
	}()
	d = r.Decide(s)
	if ce := q.logger.Check(zap.DebugLevel, "rule decided"); ce != nil {
		ce.Write(zap.String("sequence", q.name), zap.String("rule", r.Name()), zap.Stringer("decision", d))
	}
	return d
}

func (q *Sequence) singlePossible(r Rule, s curi.Subject) (d Decision, ok bool) {
	ow, isOneWay := r.(OneWay)
	if !isOneWay {
		return Pass, false
	}
	defer func() {
		if rec := recover(); rec != nil {
			d, ok = Pass, false
		}
	}()
	return ow.SinglePossibleNonPass(s)
}

// Walk calls fn for every rule in the sequence, descending into nested
// sequences and filter rules.
func (q *Sequence) Walk(fn func(Rule)) {
	for _, r := range q.rules {
		fn(r)
		switch inner := r.(type) {
		case *Sequence:
			inner.Walk(fn)
		case *FilterRule:
			for _, f := range inner.filters {
				if df, ok := f.(*DecidingFilter); ok {
					fn(df.Rule)
					if seq, ok := df.Rule.(*Sequence); ok {
						seq.Walk(fn)
					}
				}
			}
		}
	}
}

func subjectString(s curi.Subject) string {
	if s == nil || s.Core() == nil {
		return ""
	}
	return s.Core().String()
}
