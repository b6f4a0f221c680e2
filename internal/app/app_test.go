package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlscope/internal/config"
	"github.com/JakeFAU/crawlscope/internal/curi"
	"github.com/JakeFAU/crawlscope/internal/decide"
	"github.com/JakeFAU/crawlscope/internal/storage/memory"
)

func testConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 0, ShutdownSeconds: 2},
		Crawler: config.CrawlerConfig{UserAgent: "crawlscope-test", DNSValiditySec: 60},
		Robots:  config.RobotsConfig{Honoring: "classic", ValiditySec: 3600},
		Scope: config.ScopeConfig{
			SeedsFile:       "seeds.txt",
			SeedsAsPrefixes: true,
			Rules: []decide.RuleSpec{
				{Kind: "reject"},
				{Kind: "on-hosts"},
			},
		},
		Dump: config.DumpConfig{Backend: config.DumpMemory},
	}
}

func seedsOpener(name string) (io.ReadCloser, error) {
	if name != "seeds.txt" {
		return nil, fmt.Errorf("no such file %s", name)
	}
	return io.NopCloser(strings.NewReader("http://www.example.com/\n")), nil
}

func TestBuildWiresScope(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	a, err := Build(context.Background(), testConfig(), zap.NewNop(), WithOpener(seedsOpener), WithBlobStore(blobs))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	sc := a.Scope()
	in := sc.Model().NewCandidate(curi.MustParseURI("http://www.example.com/a"))
	out := sc.Model().NewCandidate(curi.MustParseURI("http://other.example.org/"))
	require.Equal(t, decide.Accept, sc.Decide(in))
	require.Equal(t, decide.Reject, sc.Decide(out))

	uri, err := sc.DumpSurts(context.Background())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "memory://"))
	require.Len(t, blobs.Paths(), 1)
}

func TestBuildMemoryBackend(t *testing.T) {
	t.Parallel()

	a, err := Build(context.Background(), testConfig(), nil, WithOpener(seedsOpener))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.IsType(t, &memory.BlobStore{}, a.blobs)
}

func TestMetricsEndpointFollowsConfig(t *testing.T) {
	t.Parallel()

	for _, enabled := range []bool{true, false} {
		cfg := testConfig()
		cfg.Metrics.Enabled = enabled
		a, err := Build(context.Background(), cfg, zap.NewNop(), WithOpener(seedsOpener))
		require.NoError(t, err)
		t.Cleanup(a.Close)

		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		want := http.StatusNotFound
		if enabled {
			want = http.StatusOK
		}
		require.Equal(t, want, rec.Code, "metrics.enabled=%t", enabled)
	}
}

func TestBuildRejectsEmptyRules(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Scope.Rules = nil
	_, err := Build(context.Background(), cfg, zap.NewNop(), WithOpener(seedsOpener))
	require.ErrorIs(t, err, config.ErrNoRules)
}

func TestBuildRejectsBadHonoring(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Robots.Honoring = "lenient"
	_, err := Build(context.Background(), cfg, zap.NewNop(), WithOpener(seedsOpener))
	require.Error(t, err)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	a, err := Build(context.Background(), testConfig(), zap.NewNop(), WithOpener(seedsOpener))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:gosec,noctx // test-only local request
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestFileOpener(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seeds.txt"), []byte("http://example.com/\n"), 0o600))

	open := FileOpener(dir)
	rc, err := open("seeds.txt")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "http://example.com/\n", string(body))

	rc, err = open(filepath.Join(dir, "seeds.txt"))
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	_, err = open("missing.txt")
	require.True(t, errors.Is(err, os.ErrNotExist))
}
