package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlscope/internal/curi"
	"github.com/JakeFAU/crawlscope/internal/id/uuid"
	"github.com/JakeFAU/crawlscope/internal/metrics"
	"github.com/JakeFAU/crawlscope/internal/scope"
)

const (
	requestTimeout = 30 * time.Second
	// maxBodyBytes bounds request bodies, robots.txt uploads included.
	maxBodyBytes = 1 << 20
)

// Server wires HTTP handlers to a Scope.
type Server struct {
	router    chi.Router
	scope     *scope.Scope
	snapshots *SnapshotHandler
	logger    *zap.Logger
}

// Option adjusts the router NewServer builds.
type Option func(*routerOptions)

type routerOptions struct {
	metrics bool
}

// WithMetricsEndpoint controls whether /metrics is mounted. It is mounted
// unless disabled.
func WithMetricsEndpoint(enabled bool) Option {
	return func(o *routerOptions) { o.metrics = enabled }
}

// NewServer constructs a Server with middleware and routes. snapshots may
// be nil, in which case /v1/snapshots answers 503.
func NewServer(sc *scope.Scope, snapshots SnapshotLister, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ro := routerOptions{metrics: true}
	for _, opt := range opts {
		opt(&ro)
	}
	s := &Server{
		scope:     sc,
		snapshots: NewSnapshotHandler(snapshots, logger),
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(metrics.Middleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if ro.metrics {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/decide", s.decide)
		r.Post("/seeds", s.addSeed)
		r.Post("/robots", s.updateRobots)
		r.Get("/surts", s.exportSurts)
		r.Post("/surts/dump", s.dumpSurts)
		r.Post("/checkpoint", s.checkpoint)
		r.Get("/servers/{key}", s.getServer)
		r.Get("/snapshots", s.snapshots.ListSnapshots)
		r.Get("/snapshots/{key}", s.snapshots.GetSnapshot)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.scope == nil {
		writeError(w, http.StatusServiceUnavailable, "scope not loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ready",
		"rules":   s.scope.Sequence().Len(),
		"servers": s.scope.Servers().ServerCount(),
	})
}

type decideRequest struct {
	URI          string `json:"uri"`
	PathFromSeed string `json:"path_from_seed"`
	Via          string `json:"via"`
	ViaContext   string `json:"via_context"`
	Seed         bool   `json:"seed"`
	UserAgent    string `json:"user_agent"`
	// Robots runs the robots precondition check as well.
	Robots bool `json:"robots"`
}

type decideResponse struct {
	URI        string  `json:"uri"`
	Decision   string  `json:"decision"`
	ServerKey  string  `json:"server_key,omitempty"`
	Gate       string  `json:"robots_gate,omitempty"`
	Prereq     string  `json:"prerequisite,omitempty"`
	Status     int     `json:"fetch_status,omitempty"`
	CrawlDelay float64 `json:"crawl_delay"`
}

func (s *Server) decide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.candidate(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := decideResponse{
		URI:        c.String(),
		Decision:   s.scope.Decide(c).String(),
		CrawlDelay: -1,
	}
	if req.Robots {
		cu := s.scope.Model().ToCrawlURI(c, 0)
		resp.Gate = s.scope.CheckRobots(cu).String()
		resp.Prereq, _ = cu.PrerequisiteURI()
		resp.Status = cu.FetchStatus()
	}
	// Only robots checks create server records; a plain decide reads them.
	if key, ok := s.scope.ServerKeyFor(c.URI()); ok {
		resp.ServerKey = key
		if s.scope.Servers().ContainsServer(key) {
			resp.CrawlDelay = s.scope.CrawlDelay(c, req.UserAgent)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) candidate(req decideRequest) (*curi.Candidate, error) {
	if strings.TrimSpace(req.URI) == "" {
		return nil, errors.New("uri is required")
	}
	u, err := curi.ParseURI(req.URI)
	if err != nil {
		return nil, fmt.Errorf("invalid uri: %w", err)
	}
	var c *curi.Candidate
	if req.Seed {
		c = s.scope.Model().NewSeed(u)
	} else {
		c = s.scope.Model().NewCandidate(u)
	}
	for _, h := range []byte(req.PathFromSeed) {
		if !curi.Hop(h).Valid() {
			return nil, fmt.Errorf("invalid hop %q in path_from_seed", h)
		}
	}
	c.SetPathFromSeed(req.PathFromSeed)
	if req.Via != "" {
		via, err := curi.ParseURI(req.Via)
		if err != nil {
			return nil, fmt.Errorf("invalid via: %w", err)
		}
		c.SetVia(via)
	}
	return c, nil
}

type seedRequest struct {
	URI string `json:"uri"`
}

func (s *Server) addSeed(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := curi.ParseURI(req.URI)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid uri")
		return
	}
	seed := s.scope.AddSeed(u)
	writeJSON(w, http.StatusCreated, map[string]any{
		"seed":          seed.String(),
		"surt_prefixes": s.scope.SurtPrefixCount(),
	})
}

type robotsRequest struct {
	URI      string `json:"uri"`
	Status   int    `json:"status"`
	Attempts int    `json:"attempts"`
	Body     string `json:"body"`
}

// updateRobots records a robots.txt exchange performed elsewhere.
func (s *Server) updateRobots(w http.ResponseWriter, r *http.Request) {
	var req robotsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := curi.ParseURI(req.URI)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid uri")
		return
	}
	robotsURI, err := curi.Resolve(u, "/robots.txt")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid uri")
		return
	}
	c := s.scope.Model().ToCrawlURI(s.scope.Model().NewCandidate(robotsURI), 0)
	for i := 0; i < max(req.Attempts, 1); i++ {
		c.IncrementFetchAttempts()
	}
	c.SetFetchStatus(req.Status)
	if req.Status > 0 {
		c.SetResponseHeaders(http.Header{})
	}
	outcome := s.scope.UpdateRobots(c, []byte(req.Body))
	writeJSON(w, http.StatusOK, map[string]any{
		"uri":     robotsURI.String(),
		"outcome": string(outcome),
		"valid":   outcome.Valid(),
	})
}

func (s *Server) exportSurts(w http.ResponseWriter, _ *http.Request) {
	var sb strings.Builder
	if err := s.scope.ExportSurts(&sb); err != nil {
		if errors.Is(err, scope.ErrNoPrefixSource) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to export prefixes")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(sb.String())); err != nil {
		s.logger.Warn("write surts failed", zap.Error(err))
	}
}

func (s *Server) dumpSurts(w http.ResponseWriter, r *http.Request) {
	uri, err := s.scope.DumpSurts(r.Context())
	if err != nil {
		if errors.Is(err, scope.ErrNoPrefixSource) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("dump surts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to dump prefixes")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"uri": uri})
}

func (s *Server) checkpoint(w http.ResponseWriter, r *http.Request) {
	n, err := s.scope.Checkpoint(r.Context())
	if err != nil {
		s.logger.Error("checkpoint failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"servers": n})
}

func (s *Server) getServer(w http.ResponseWriter, r *http.Request) {
	key := strings.ToLower(chi.URLParam(r, "key"))
	if key == "" || !s.scope.Servers().ContainsServer(key) {
		writeError(w, http.StatusNotFound, "server not cached")
		return
	}
	srv := s.scope.Servers().GetServerFor(key)
	if srv == nil {
		writeError(w, http.StatusServiceUnavailable, "scope closed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"server": srv.Snapshot()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

type requestIDKey struct{}

// RequestID returns the id requestIDMiddleware attached to ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.OrNew(r.Header.Get("X-Request-ID"))
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("panic", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
