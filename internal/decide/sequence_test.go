package decide

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/crawlscope/internal/curi"
)

func passRule(name string) Rule {
	return NewRuleFunc(name, func(curi.Subject) Decision { return Pass })
}

func TestSequenceLastNonPassWins(t *testing.T) {
	t.Parallel()

	s := cand(t, "http://example.com/")
	cases := []struct {
		name  string
		rules []Rule
		want  Decision
	}{
		{"empty", nil, Pass},
		{"accept", []Rule{AcceptAll("a")}, Accept},
		{"reject after accept", []Rule{AcceptAll("a"), RejectAll("r")}, Reject},
		{"accept after reject", []Rule{RejectAll("r"), passRule("p1"), AcceptAll("a"), passRule("p2")}, Accept},
		{"only passes", []Rule{passRule("p1"), passRule("p2")}, Pass},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			seq := NewSequence("scope", nil, tc.rules...)
			require.Equal(t, tc.want, seq.Decide(s))
			require.Equal(t, tc.want, seq.DecideExhaustive(s))
		})
	}
}

func TestSequenceSkipsOneWayRuleMatchingVerdict(t *testing.T) {
	t.Parallel()

	calls := 0
	counting := NewPredicated("counting", Accept, func(curi.Subject) bool {
		calls++
		return true
	})
	seq := NewSequence("scope", nil, AcceptAll("a"), counting)
	require.Equal(t, Accept, seq.Decide(cand(t, "http://example.com/")))
	require.Zero(t, calls)

	seq = NewSequence("scope", nil, RejectAll("r"), counting)
	require.Equal(t, Accept, seq.Decide(cand(t, "http://example.com/")))
	require.Equal(t, 1, calls)
}

func TestSequenceRecoversPanickingRule(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	boom := NewRuleFunc("boom", func(curi.Subject) Decision { panic("kaboom") })
	seq := NewSequence("scope", zap.New(core), AcceptAll("a"), boom)

	require.Equal(t, Accept, seq.Decide(cand(t, "http://example.com/")))
	entries := logs.FilterMessage("rule panicked").All()
	require.Len(t, entries, 1)
	require.Equal(t, "boom", entries[0].ContextMap()["rule"])
}

func TestNestedSequence(t *testing.T) {
	t.Parallel()

	inner := NewSequence("inner", nil, RejectAll("r"))
	outer := NewSequence("outer", nil, AcceptAll("a"), inner, passRule("p"))
	require.Equal(t, Reject, outer.Decide(cand(t, "http://example.com/")))
	require.Equal(t, Reject, outer.DecideExhaustive(cand(t, "http://example.com/")))

	var names []string
	outer.Walk(func(r Rule) { names = append(names, r.Name()) })
	require.Equal(t, []string{"a", "inner", "r", "p"}, names)
	require.Equal(t, 3, outer.Len())
}

// Skipping one-way rules must never change a verdict, whatever the mix.
func TestDecideAgreesWithExhaustive(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	subjects := []curi.Subject{
		cand(t, "http://example.com/a"),
		cand(t, "http://example.org/b LL"),
		fetchedURI(t, "https://www.example.net/c/d.png LE http://example.net/"),
	}
	pool := []func(int) Rule{
		func(int) Rule { return AcceptAll("a") },
		func(int) Rule { return RejectAll("r") },
		func(int) Rule { return passRule("p") },
		func(n int) Rule {
			return NewPredicated("host", Decision(1+n%2), func(s curi.Subject) bool {
				return s.Core().URI().Hostname() == "example.org"
			})
		},
		func(n int) Rule {
			return NewRuleFunc("flip", func(s curi.Subject) Decision {
				if s.Core().HopCount()%2 == n%2 {
					return Reject
				}
				return Accept
			})
		},
		func(n int) Rule { return HasVia("via", Decision(1+n%2)) },
	}
	for round := 0; round < 200; round++ {
		rules := make([]Rule, rng.IntN(8))
		for i := range rules {
			rules[i] = pool[rng.IntN(len(pool))](rng.IntN(10))
		}
		seq := NewSequence("diff", nil, rules...)
		for _, s := range subjects {
			require.Equal(t, seq.DecideExhaustive(s), seq.Decide(s), "round %d on %s", round, s.Core())
		}
	}
}

func TestDecisionText(t *testing.T) {
	t.Parallel()

	d, err := ParseDecision(" accept ")
	require.NoError(t, err)
	require.Equal(t, Accept, d)

	var back Decision
	require.NoError(t, back.UnmarshalText([]byte("Reject")))
	require.Equal(t, Reject, back)
	require.Error(t, back.UnmarshalText([]byte("maybe")))
	require.Equal(t, "PASS", Pass.String())
}

func TestFilterRule(t *testing.T) {
	t.Parallel()

	isPNG := NewPredicated("png", Accept, func(s curi.Subject) bool {
		return s.Core().URI().Path == "/x.png"
	})
	r := NewFilterRule("filter", Accept, Reject, &DecidingFilter{Rule: isPNG})

	require.Equal(t, Pass, r.Decide(cand(t, "http://example.com/x.png")), "unfetched")
	require.Equal(t, Accept, r.Decide(fetchedURI(t, "http://example.com/x.png")))
	require.Equal(t, Reject, r.Decide(fetchedURI(t, "http://example.com/y.gif")))
	require.Equal(t, Accept, NewFilterRule("empty", Accept, Reject).Decide(fetchedURI(t, "http://example.com/")))

	seq := NewSequence("scope", nil, r)
	var names []string
	seq.Walk(func(r Rule) { names = append(names, r.Name()) })
	require.Equal(t, []string{"filter", "png"}, names)
}
