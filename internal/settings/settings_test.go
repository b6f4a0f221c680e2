package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/crawlscope/internal/curi"
)

func subject(t *testing.T, raw string) curi.Subject {
	t.Helper()
	return curi.NewModel(curi.ModelOptions{}).NewCandidate(curi.MustParseURI(raw))
}

func TestResolverMostSpecificScopeWins(t *testing.T) {
	t.Parallel()

	r := NewResolver([]Override{
		{Scope: "org", Rule: "hops", Params: map[string]any{"max-hops": 3}},
		{Scope: "example.org", Rule: "hops", Params: map[string]any{"max-hops": 5}},
		{Scope: "WWW.Example.org.", Rule: "hops", Params: map[string]any{"Max-Hops": 7}},
		{Scope: "", Rule: "hops", Params: map[string]any{"max-hops": 99}},
	})

	cases := map[string]any{
		"http://www.example.org/": 7,
		"http://sub.example.org/": 5,
		"http://archive.org/":     3,
	}
	for raw, want := range cases {
		v, ok := r.Lookup(curi.MustParseURI(raw), "hops", "max-hops")
		require.True(t, ok, raw)
		assert.Equal(t, want, v, raw)
	}

	_, ok := r.Lookup(curi.MustParseURI("http://example.com/"), "hops", "max-hops")
	require.False(t, ok)
	_, ok = r.Lookup(curi.MustParseURI("http://www.example.org/"), "other", "max-hops")
	require.False(t, ok)
	require.Equal(t, []string{"example.org", "org", "www.example.org"}, r.Scopes())

	var none *Resolver
	_, ok = none.Lookup(curi.MustParseURI("http://example.com/"), "hops", "max-hops")
	require.False(t, ok)
}

func TestParamsTypedAccess(t *testing.T) {
	t.Parallel()

	res := NewResolver([]Override{{Scope: "slow.example", Rule: "r", Params: map[string]any{"limit": "9"}}})
	p := NewParams("r", map[string]any{"limit": 4, "flag": "true", "list": []any{"a", "b"}, "one": "x y"}, res, nil)

	fast := subject(t, "http://fast.example/")
	slow := subject(t, "http://www.slow.example/")
	require.Equal(t, 4, p.Int(fast, "limit", 1))
	require.Equal(t, 9, p.Int(slow, "limit", 1))
	require.Equal(t, int64(9), p.Int64(slow, "limit", 1))
	require.Equal(t, 1, p.Int(fast, "absent", 1))
	require.True(t, p.Bool(fast, "flag", false))
	require.Equal(t, []string{"a", "b"}, p.Strings(fast, "list"))
	require.Equal(t, []string{"x y"}, p.Strings(fast, "one"))
	require.Equal(t, "fallback", p.String(fast, "absent", "fallback"))
}

func TestParamsMissingRequiredLoggedOnce(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	p := NewParams("regex", nil, nil, zap.New(core))
	s := subject(t, "http://example.com/")

	for i := 0; i < 3; i++ {
		_, ok := p.Regexp(s, "regexp")
		require.False(t, ok)
	}
	require.Equal(t, 1, logs.FilterMessage("missing required parameter").Len())
}

func TestParamsRegexpIsAnchoredAndCached(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	p := NewParams("regex", map[string]any{"regexp": `.*\.pdf`, "bad": "("}, nil, zap.New(core))
	s := subject(t, "http://example.com/")

	re, ok := p.Regexp(s, "regexp")
	require.True(t, ok)
	require.True(t, re.MatchString("http://example.com/a.pdf"))
	require.False(t, re.MatchString("http://example.com/a.pdf?x"))

	again, _ := p.Regexp(s, "regexp")
	require.Same(t, re, again)

	_, ok = p.Regexp(s, "bad")
	require.False(t, ok)
	_, ok = p.Regexp(s, "bad")
	require.False(t, ok)
	require.Equal(t, 1, logs.FilterMessage("bad regular expression").Len())
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewParams("r", map[string]any{"regexp": "a+"}, nil, nil).Validate("regexp", "absent"))
	require.Error(t, NewParams("r", map[string]any{"regexp-list": []any{"ok", "(("}}, nil, nil).Validate("regexp-list"))
}
