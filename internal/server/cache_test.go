package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/crawlscope/internal/curi"
)

func TestCacheHolds(t *testing.T) {
	t.Parallel()

	c := NewCache()
	c.GetServerFor("www.example.com:9090")
	c.GetHostFor("www.example.com")
	require.True(t, c.ContainsServer("www.example.com:9090"))
	require.True(t, c.ContainsHost("www.example.com"))
	require.False(t, c.ContainsServer("www.example.com"))
	require.Nil(t, c.GetHostFor(""))
}

func TestCacheURIKeys(t *testing.T) {
	t.Parallel()

	c := NewCache()
	for _, raw := range []string{"http://www.example.com", "http://www.example.com:9090", "dns://www.example.com:9090"} {
		fetch := pageFetch(t, raw)
		require.NotNil(t, c.GetServerForURI(fetch))
		require.NotNil(t, c.GetHostForURI(fetch))

		key, ok := ServerKey(fetch.URI())
		require.True(t, ok)
		require.True(t, c.ContainsServer(key), raw)
	}
	require.True(t, c.ContainsHost("www.example.com"))
	require.True(t, c.ContainsHost("dns:"))
	require.Equal(t, 3, c.ServerCount())
	require.Equal(t, 2, c.HostCount())
}

func TestCacheConcurrentFirstAccessSingleWinner(t *testing.T) {
	t.Parallel()

	const callers = 64
	c := NewCache()
	servers := make([]*Server, callers)
	hosts := make([]*Host, callers)

	g, _ := errgroup.WithContext(context.Background())
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			servers[i] = c.GetServerFor("example.com:8080")
			hosts[i] = c.GetHostFor("example.com")
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i := 1; i < callers; i++ {
		require.Same(t, servers[0], servers[i])
		require.Same(t, hosts[0], hosts[i])
	}
	require.Equal(t, 1, c.ServerCount())
	require.Equal(t, 1, c.HostCount())
}

func TestCacheEvictAndIterate(t *testing.T) {
	t.Parallel()

	c := NewCache()
	first := c.GetServerFor("a.example")
	c.GetServerFor("b.example")
	c.GetHostFor("a.example")

	var keys []string
	c.ForAllServers(func(s *Server) { keys = append(keys, s.Key()) })
	require.ElementsMatch(t, []string{"a.example", "b.example"}, keys)

	hosts := 0
	c.ForAllHosts(func(*Host) { hosts++ })
	require.Equal(t, 1, hosts)

	require.True(t, c.EvictServer("a.example"))
	require.False(t, c.EvictServer("a.example"))
	require.NotSame(t, first, c.GetServerFor("a.example"), "recreated after eviction")
}

func TestCacheCleanupIsIdempotent(t *testing.T) {
	t.Parallel()

	c := NewCache()
	c.GetServerFor("a.example")
	c.GetHostFor("a.example")

	c.Cleanup()
	c.Cleanup()

	require.Zero(t, c.ServerCount())
	require.Zero(t, c.HostCount())
	require.Nil(t, c.GetServerFor("a.example"))
	require.Nil(t, c.GetHostForURI(pageFetch(t, "http://a.example/")))
}

func TestGetServerForURIWithoutKey(t *testing.T) {
	t.Parallel()

	m := curi.NewModel(curi.ModelOptions{})
	c := NewCache()
	require.Nil(t, c.GetServerForURI(m.NewCandidate(curi.MustParseURI("dns:not/valid"))))
}
