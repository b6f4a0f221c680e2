package curi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseURINormalizes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"HTTP://WWW.Example.COM", "http://www.example.com/"},
		{"https://example.com:443/a?b=1#top", "https://example.com/a?b=1"},
		{"http://example.com:8080/x", "http://example.com:8080/x"},
		{"http://bücher.example/", "http://xn--bcher-kva.example/"},
		{"http://[::1]:80/", "http://[::1]/"},
		{"dns:example.com", "dns:example.com"},
	}
	for _, tc := range cases {
		u, err := ParseURI(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, u.String(), tc.in)
	}
}

func TestParseURIErrors(t *testing.T) {
	t.Parallel()

	_, err := ParseURI("/relative/only")
	require.Error(t, err)
	_, err = ParseURI("http://[::1")
	require.Error(t, err)
}

func TestPathQuery(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/a/b?x=1", PathQuery(MustParseURI("http://example.com/a/b?x=1")))
	require.Equal(t, "/", PathQuery(MustParseURI("http://example.com")))
}
