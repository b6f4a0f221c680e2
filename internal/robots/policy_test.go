package robots

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlscope/internal/curi"
)

const sampleRobots = `# sample
User-agent: goodbot
Disallow: /private
Crawl-delay: 2

User-agent: *
Disallow: /

User-agent: otherbot
Disallow: /tmp
`

func fetchOf(t *testing.T, raw string) *curi.CrawlURI {
	t.Helper()
	m := curi.NewModel(curi.ModelOptions{})
	return m.ToCrawlURI(m.NewCandidate(curi.MustParseURI(raw)), 1)
}

func TestParseHonoringType(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"classic", "ignore", "custom", "most-favored", "most-favored-set"} {
		ht, err := ParseHonoringType(name)
		require.NoError(t, err)
		require.Equal(t, name, ht.String())
	}
	ht, err := ParseHonoringType(" Most-Favored ")
	require.NoError(t, err)
	require.Equal(t, MostFavored, ht)

	_, err = ParseHonoringType("lenient")
	require.True(t, errors.Is(err, ErrUnknownHonoring))
}

func TestPolicyForAllowsAll(t *testing.T) {
	t.Parallel()

	for _, body := range []string{"", "User-agent: *\nDisallow:\n", "# nothing here\n"} {
		p, err := PolicyFor([]byte(body), Honoring{})
		require.NoError(t, err)
		require.Equal(t, KindAllowAll, p.Kind(), "body %q", body)
		require.False(t, p.Disallows(fetchOf(t, "http://example.com/x"), "anybot"))
		require.Equal(t, float64(-1), p.CrawlDelay("anybot"))
	}
}

func TestDenyAll(t *testing.T) {
	t.Parallel()

	require.True(t, DenyAll().Disallows(fetchOf(t, "http://example.com/"), "bot"))
}

func TestClassicUsesFirstContainedAgent(t *testing.T) {
	t.Parallel()

	p, err := PolicyFor([]byte(sampleRobots), Honoring{Type: Classic})
	require.NoError(t, err)
	require.Equal(t, KindNormal, p.Kind())
	require.Equal(t, []string{"goodbot", "*", "otherbot"}, p.Agents())

	ua := "Mozilla/5.0 (compatible; GoodBot/1.0)"
	require.False(t, p.Disallows(fetchOf(t, "http://example.com/public"), ua))
	require.True(t, p.Disallows(fetchOf(t, "http://example.com/private/a"), ua))

	// "*" precedes otherbot in file order, so otherbot is never reached.
	require.True(t, p.Disallows(fetchOf(t, "http://example.com/public"), "otherbot/2.0"))

	require.Equal(t, float64(2), p.CrawlDelay(ua))
	require.Equal(t, float64(-1), p.CrawlDelay("otherbot"))
}

func TestClassicRecomputesWhenAgentChanges(t *testing.T) {
	t.Parallel()

	p, err := PolicyFor([]byte("User-agent: alpha\nDisallow: /a\n\nUser-agent: beta\nDisallow: /b\n"), Honoring{Type: Classic})
	require.NoError(t, err)

	require.True(t, p.Disallows(fetchOf(t, "http://example.com/a"), "alpha-crawler"))
	require.False(t, p.Disallows(fetchOf(t, "http://example.com/b"), "alpha-crawler"))
	require.True(t, p.Disallows(fetchOf(t, "http://example.com/b"), "beta-crawler"))
	require.False(t, p.Disallows(fetchOf(t, "http://example.com/a"), "beta-crawler"))
	require.False(t, p.Disallows(fetchOf(t, "http://example.com/a"), "gamma"), "no section applies")
}

func TestMostFavored(t *testing.T) {
	t.Parallel()

	p, err := PolicyFor([]byte(sampleRobots), Honoring{Type: MostFavored, Masquerade: true})
	require.NoError(t, err)

	c := fetchOf(t, "http://example.com/public")
	require.False(t, p.Disallows(c, "crawlscope"))
	require.Equal(t, "goodbot", c.UserAgent())

	c = fetchOf(t, "http://example.com/private")
	require.False(t, p.Disallows(c, "crawlscope"), "otherbot allows /private")
	require.Equal(t, "otherbot", c.UserAgent())

	blocked, err := PolicyFor([]byte("User-agent: a\nDisallow: /x\n\nUser-agent: b\nDisallow: /x\n"), Honoring{Type: MostFavored})
	require.NoError(t, err)
	c = fetchOf(t, "http://example.com/x/y?q=1")
	require.True(t, blocked.Disallows(c, "crawlscope"))
	require.Equal(t, "", c.UserAgent(), "no masquerade unless asked")
}

func TestMostFavoredWildcardKeepsOwnAgent(t *testing.T) {
	t.Parallel()

	p, err := PolicyFor([]byte("User-agent: foo\nDisallow: /\n\nUser-agent: *\nDisallow: /private\n"), Honoring{Type: MostFavored, Masquerade: true})
	require.NoError(t, err)

	c := fetchOf(t, "http://example.com/public")
	require.False(t, p.Disallows(c, "crawlscope"), "the wildcard section allows /public")
	require.Equal(t, "", c.UserAgent(), "never present \"*\" as a user agent")

	c = fetchOf(t, "http://example.com/private")
	require.True(t, p.Disallows(c, "crawlscope"))
	require.Equal(t, "", c.UserAgent())
}

func TestMostFavoredSet(t *testing.T) {
	t.Parallel()

	h := Honoring{Type: MostFavoredSet, Masquerade: true, UserAgents: []string{"Mozilla/5.0 (compatible; OtherBot)", "nomatch"}}
	p, err := PolicyFor([]byte(sampleRobots), h)
	require.NoError(t, err)

	// The first declared token contained in "...otherbot)" is "*", which
	// disallows everything and is never presented as an agent.
	c := fetchOf(t, "http://example.com/public")
	require.True(t, p.Disallows(c, "crawlscope"))
	require.Equal(t, "", c.UserAgent())

	h.UserAgents = []string{"my-otherbot"}
	p, err = PolicyFor([]byte("User-agent: otherbot\nDisallow: /tmp\n\nUser-agent: *\nDisallow: /\n"), h)
	require.NoError(t, err)
	require.False(t, p.Disallows(fetchOf(t, "http://example.com/public"), "crawlscope"))
	require.True(t, p.Disallows(fetchOf(t, "http://example.com/tmp/x"), "crawlscope"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	normal, err := PolicyFor([]byte(sampleRobots), Honoring{Type: Classic})
	require.NoError(t, err)

	for _, p := range []*Policy{AllowAll(), DenyAll(), normal} {
		raw, err := json.Marshal(p.Snapshot())
		require.NoError(t, err)
		var snap Snapshot
		require.NoError(t, json.Unmarshal(raw, &snap))
		back, err := FromSnapshot(snap, Honoring{Type: Classic})
		require.NoError(t, err)
		assert.Equal(t, p.Kind(), back.Kind())
		assert.Equal(t, p.Body(), back.Body())
	}

	_, err = FromSnapshot(Snapshot{Kind: Kind(9)}, Honoring{})
	require.Error(t, err)
	var k Kind
	require.Error(t, k.UnmarshalText([]byte("maybe")))
}

func TestConcurrentDisallows(t *testing.T) {
	t.Parallel()

	p, err := PolicyFor([]byte("User-agent: alpha\nDisallow: /a\n\nUser-agent: beta\nDisallow: /b\n"), Honoring{Type: Classic})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ua, blocked := "alpha", "/a"
			if n%2 == 1 {
				ua, blocked = "beta", "/b"
			}
			assert.True(t, p.Disallows(fetchOf(t, "http://example.com"+blocked), ua))
		}(i)
	}
	wg.Wait()
}
