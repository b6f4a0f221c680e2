package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlscope/internal/decide"
	"github.com/JakeFAU/crawlscope/internal/robots"
	"github.com/JakeFAU/crawlscope/internal/scope"
	"github.com/JakeFAU/crawlscope/internal/server"
	"github.com/JakeFAU/crawlscope/internal/storage/memory"
	"github.com/JakeFAU/crawlscope/internal/storage/postgres"
)

func TestHealthAndReady(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"rules":3`)

	require.Equal(t, http.StatusServiceUnavailable, do(t, NewServer(nil, nil, nil), http.MethodGet, "/readyz", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	do(t, srv, http.MethodPost, "/v1/decide", `{"uri":"http://www.example.com/"}`)
	rec := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "crawlscope_decisions_total")

	quiet := NewServer(srv.scope, nil, nil, WithMetricsEndpoint(false))
	require.Equal(t, http.StatusNotFound, do(t, quiet, http.MethodGet, "/metrics", "").Code)
	require.Equal(t, http.StatusOK, do(t, quiet, http.MethodGet, "/healthz", "").Code)
}

func TestDecide(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	cases := []struct {
		body     string
		decision string
	}{
		{`{"uri":"http://www.example.com/page"}`, "ACCEPT"},
		{`{"uri":"http://www.example.com/page","path_from_seed":"LLLL"}`, "REJECT"},
		{`{"uri":"http://elsewhere.net/"}`, "REJECT"},
	}
	for _, tc := range cases {
		rec := do(t, srv, http.MethodPost, "/v1/decide", tc.body)
		require.Equal(t, http.StatusOK, rec.Code, tc.body)
		var resp decideResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, tc.decision, resp.Decision, tc.body)
	}

	rec := do(t, srv, http.MethodPost, "/v1/decide", `{"uri":"https://www.example.com/x","robots":true}`)
	var resp decideResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "www.example.com:443", resp.ServerKey)
	assert.Equal(t, scope.NeedsRobots.String(), resp.Gate)
	assert.Equal(t, "https://www.example.com/robots.txt", resp.Prereq)
	assert.Equal(t, float64(-1), resp.CrawlDelay)
}

func TestDecideRejectsBadInput(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	for _, body := range []string{
		"{invalid",
		`{}`,
		`{"uri":"http://www.example.com/","path_from_seed":"LQ"}`,
		`{"uri":"http://www.example.com/","unknown":1}`,
	} {
		rec := do(t, srv, http.MethodPost, "/v1/decide", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestRobotsThenDecide(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	body, err := json.Marshal(robotsRequest{
		URI:    "http://www.example.com/any/page",
		Status: 200,
		Body:   "User-agent: *\nDisallow: /private\nCrawl-delay: 5\n",
	})
	require.NoError(t, err)
	rec := do(t, srv, http.MethodPost, "/v1/robots", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"outcome":"parsed"`)

	rec = do(t, srv, http.MethodPost, "/v1/decide", `{"uri":"http://www.example.com/private/a","robots":true}`)
	var resp decideResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, scope.Precluded.String(), resp.Gate)
	assert.Equal(t, float64(5), resp.CrawlDelay)

	rec = do(t, srv, http.MethodGet, "/v1/servers/www.example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"valid_robots":true`)

	require.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/v1/servers/unknown.example", "").Code)
}

func TestDecideLeavesServerCacheAlone(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	for _, body := range []string{
		`{"uri":"http://elsewhere.net/"}`,
		`{"uri":"http://www.example.com/page","user_agent":"otherbot"}`,
	} {
		rec := do(t, srv, http.MethodPost, "/v1/decide", body)
		require.Equal(t, http.StatusOK, rec.Code, body)
		var resp decideResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, float64(-1), resp.CrawlDelay, body)
		assert.NotEmpty(t, resp.ServerKey, body)
	}
	require.Equal(t, 0, srv.scope.Servers().ServerCount())
	require.False(t, srv.scope.Servers().ContainsServer("elsewhere.net"))
}

func TestSeedsAndSurts(t *testing.T) {
	t.Parallel()

	srv, blobs := newTestServer(t, nil)
	rec := do(t, srv, http.MethodPost, "/v1/seeds", `{"uri":"http://added.example.org/"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"surt_prefixes":2`)

	rec = do(t, srv, http.MethodGet, "/v1/surts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "# on-hosts\nhttp://(com,example,www,)\nhttp://(org,example,added,)\n", rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/v1/surts/dump", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, []string{"surts/current.txt"}, blobs.Paths())

	require.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/v1/seeds", `{"uri":"::"}`).Code)
}

func TestSurtsWithoutPrefixRules(t *testing.T) {
	t.Parallel()

	sc, err := scope.New(scope.Config{Rules: []decide.RuleSpec{{Kind: "accept"}}})
	require.NoError(t, err)
	t.Cleanup(sc.Close)
	srv := NewServer(sc, nil, zap.NewNop())

	require.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/v1/surts", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, "/v1/surts/dump", "").Code)
	require.Equal(t, http.StatusInternalServerError, do(t, srv, http.MethodPost, "/v1/checkpoint", "").Code)
}

func TestCheckpointAndSnapshots(t *testing.T) {
	t.Parallel()

	store := &fakeSnapshots{}
	srv, _ := newTestServer(t, store)
	do(t, srv, http.MethodPost, "/v1/robots", `{"uri":"http://www.example.com/","status":200,"body":"User-agent: *\nDisallow: /x\n"}`)
	do(t, srv, http.MethodPost, "/v1/robots", `{"uri":"http://down.example.com/","status":-2,"attempts":1}`)

	rec := do(t, srv, http.MethodPost, "/v1/checkpoint", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"servers":2`)

	rec = do(t, srv, http.MethodGet, "/v1/snapshots", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total":2`)

	rec = do(t, srv, http.MethodGet, "/v1/snapshots?valid=true", "")
	require.Contains(t, rec.Body.String(), `"total":1`)
	require.Contains(t, rec.Body.String(), `"robots_policy":"normal"`)

	rec = do(t, srv, http.MethodGet, "/v1/snapshots?limit=1&offset=5", "")
	require.Contains(t, rec.Body.String(), `"snapshots":[]`)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/v1/snapshots/www.example.com", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/v1/snapshots/nope.example", "").Code)

	for _, q := range []string{"limit=0", "limit=x", "offset=-1", "valid=maybe"} {
		assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/v1/snapshots?"+q, "").Code, q)
	}

	store.err = errors.New("boom")
	require.Equal(t, http.StatusInternalServerError, do(t, srv, http.MethodGet, "/v1/snapshots", "").Code)
	require.Equal(t, http.StatusInternalServerError, do(t, srv, http.MethodGet, "/v1/snapshots/www.example.com", "").Code)
}

func TestSnapshotsWithoutStore(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	require.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/v1/snapshots", "").Code)
	require.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/v1/snapshots/a", "").Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "0b6c7e2e-6a43-4d8c-9c1e-3f3bb4f0f7a1")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, "0b6c7e2e-6a43-4d8c-9c1e-3f3bb4f0f7a1", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

func newTestServer(t *testing.T, store *fakeSnapshots) (*Server, *memory.BlobStore) {
	t.Helper()
	blobs := memory.NewBlobStore()
	opts := []scope.Option{
		scope.WithBlobStore(blobs),
		scope.WithOpener(func(name string) (io.ReadCloser, error) {
			if name != "seeds.txt" {
				return nil, fmt.Errorf("no such file %s", name)
			}
			return io.NopCloser(strings.NewReader("http://www.example.com/\n")), nil
		}),
	}
	var lister SnapshotLister
	if store != nil {
		opts = append(opts, scope.WithSnapshotStore(store))
		lister = store
	}
	sc, err := scope.New(scope.Config{
		UserAgent: "crawlscope-test",
		Honoring:  robots.Honoring{Type: robots.Classic},
		SeedsFile: "seeds.txt",
		DumpPath:  "surts/current.txt",
		Rules: []decide.RuleSpec{
			{Kind: "reject"},
			{Kind: "on-hosts"},
			{Kind: "too-many-hops", Params: map[string]any{"max-hops": 3}},
		},
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(sc.Close)
	return NewServer(sc, lister, zap.NewNop()), blobs
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

type fakeSnapshots struct {
	mu    sync.Mutex
	snaps map[string]server.Snapshot
	err   error
}

func (f *fakeSnapshots) Save(_ context.Context, snap server.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snaps == nil {
		f.snaps = map[string]server.Snapshot{}
	}
	f.snaps[snap.Key] = snap
	return nil
}

func (f *fakeSnapshots) List(context.Context) ([]server.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]server.Snapshot, 0, len(f.snaps))
	for _, s := range f.snaps {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSnapshots) Load(_ context.Context, key string) (server.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return server.Snapshot{}, f.err
	}
	s, ok := f.snaps[key]
	if !ok {
		return server.Snapshot{}, postgres.ErrNotFound
	}
	return s, nil
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, client := net.Pipe()
	h.client = client
	return conn, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
