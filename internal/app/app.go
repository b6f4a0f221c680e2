// Package app builds a Scope and its collaborators from configuration and
// runs the debug HTTP server around it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlscope/internal/api"
	"github.com/JakeFAU/crawlscope/internal/clock/system"
	"github.com/JakeFAU/crawlscope/internal/config"
	"github.com/JakeFAU/crawlscope/internal/curi"
	"github.com/JakeFAU/crawlscope/internal/decide"
	"github.com/JakeFAU/crawlscope/internal/metrics"
	"github.com/JakeFAU/crawlscope/internal/scope"
	blob "github.com/JakeFAU/crawlscope/internal/storage"
	gcsstorage "github.com/JakeFAU/crawlscope/internal/storage/gcs"
	localstorage "github.com/JakeFAU/crawlscope/internal/storage/local"
	memorystorage "github.com/JakeFAU/crawlscope/internal/storage/memory"
	pgstore "github.com/JakeFAU/crawlscope/internal/storage/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	scope     *scope.Scope
	blobs     blob.BlobStore
	gcs       *storage.Client
	snapshots *pgstore.ServerStore
	apiServer *api.Server
}

// Option adjusts how Build wires the application.
type Option func(*buildOptions)

type buildOptions struct {
	open   decide.Opener
	blobs  blob.BlobStore
	frontC decide.Classifier
	frontB decide.Budgets
	geo    decide.GeoLookup
}

// WithOpener replaces os.Open for seed and SURT source files.
func WithOpener(open decide.Opener) Option {
	return func(o *buildOptions) { o.open = open }
}

// WithBlobStore bypasses the configured dump backend.
func WithBlobStore(b blob.BlobStore) Option {
	return func(o *buildOptions) { o.blobs = b }
}

// WithFrontier hands budget-aware rules the frontier's hooks.
func WithFrontier(classify decide.Classifier, budgets decide.Budgets) Option {
	return func(o *buildOptions) {
		o.frontC = classify
		o.frontB = budgets
	}
}

// WithGeoLookup sets the country lookup for geolocation rules.
func WithGeoLookup(g decide.GeoLookup) Option {
	return func(o *buildOptions) { o.geo = g }
}

// Build creates the application's dependencies. The caller owns logger.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("honoring", cfg.Robots.Honoring),
		zap.String("dump_backend", cfg.Dump.Backend),
		zap.Bool("snapshots", cfg.Store.DSN != ""),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)

	if bo.blobs != nil {
		app.blobs = bo.blobs
	} else if err := app.setupStorage(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.setupDatabase(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.setupScope(ctx, bo); err != nil {
		app.Close()
		return nil, err
	}

	var lister api.SnapshotLister
	if app.snapshots != nil {
		lister = app.snapshots
	}
	app.apiServer = api.NewServer(app.scope, lister, logger.Named("api"),
		api.WithMetricsEndpoint(cfg.Metrics.Enabled))
	return app, nil
}

func (a *App) setupStorage(ctx context.Context) error {
	var err error
	switch a.cfg.Dump.Backend {
	case config.DumpGCS:
		a.logger.Info("using GCS dump backend", zap.String("bucket", a.cfg.Dump.Bucket))
		a.gcs, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.blobs, err = gcsstorage.New(a.gcs, gcsstorage.Config{Bucket: a.cfg.Dump.Bucket, Prefix: a.cfg.Dump.Prefix})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
	case config.DumpLocal:
		a.logger.Info("using local dump backend", zap.String("path", a.cfg.Dump.BaseDir))
		a.blobs, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Dump.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
	case config.DumpMemory:
		a.logger.Info("using in-memory dump backend")
		a.blobs = memorystorage.NewBlobStore()
	default:
		a.logger.Info("prefix dumps are discarded")
		a.blobs = blob.NoOpStore{}
	}
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.Store.DSN == "" {
		a.logger.Info("server snapshots disabled")
		return nil
	}
	st, err := pgstore.NewServerStore(ctx, pgstore.Config{
		DSN:             a.cfg.Store.DSN,
		Table:           a.cfg.Store.Table,
		MaxConns:        a.cfg.Store.MaxConns,
		MaxConnLifetime: time.Hour,
	})
	if err != nil {
		return fmt.Errorf("snapshot store init failed: %w", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		return fmt.Errorf("snapshot schema: %w", err)
	}
	a.snapshots = st
	return nil
}

func (a *App) setupScope(ctx context.Context, bo buildOptions) error {
	rules, err := a.cfg.ScopeRules()
	if err != nil {
		return fmt.Errorf("scope rules: %w", err)
	}
	honoring, err := a.cfg.Honoring()
	if err != nil {
		return fmt.Errorf("robots honoring: %w", err)
	}
	opts := []scope.Option{
		scope.WithLogger(a.logger.Named("scope")),
		scope.WithClock(system.New()),
		scope.WithBlobStore(a.blobs),
		scope.WithFrontier(bo.frontC, bo.frontB),
		scope.WithGeoLookup(bo.geo),
	}
	if bo.open != nil {
		opts = append(opts, scope.WithOpener(bo.open))
	}
	if a.snapshots != nil {
		opts = append(opts, scope.WithSnapshotStore(a.snapshots))
	}
	sc, err := scope.New(scope.Config{
		UserAgent:           a.cfg.Crawler.UserAgent,
		Honoring:            honoring,
		RobotsValidity:      a.cfg.RobotsValidity(),
		CalculateRobotsOnly: a.cfg.Robots.CalculateOnly,
		DNSValidity:         a.cfg.DNSValidity(),
		Rules:               rules,
		Overrides:           a.cfg.Overrides,
		Model: curi.ModelOptions{
			PersistentKeys: a.cfg.Crawler.PersistentKeys,
			MaxOutlinks:    a.cfg.Crawler.MaxOutlinks,
		},
		SeedsFile: a.cfg.Scope.SeedsFile,
		DumpPath:  a.cfg.Scope.DumpPath,
	}, opts...)
	if err != nil {
		return err
	}
	a.scope = sc
	if a.snapshots != nil {
		n, err := sc.Restore(ctx)
		if err != nil {
			return fmt.Errorf("restore servers: %w", err)
		}
		a.logger.Info("server records restored", zap.Int("servers", n))
	}
	return nil
}

// Scope returns the wired scope.
func (a *App) Scope() *scope.Scope { return a.scope }

// Handler returns the debug HTTP handler.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Run serves HTTP on the configured port until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is canceled, then shuts the server
// down gracefully and checkpoints server records if a store is wired.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.ShutdownTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if a.snapshots != nil {
		if _, err := a.scope.Checkpoint(shutdownCtx); err != nil {
			a.logger.Warn("final checkpoint failed", zap.Error(err))
		}
	}
	select {
	case err := <-errCh:
		return fmt.Errorf("serve http: %w", err)
	default:
		return nil
	}
}

// Close releases everything Build acquired. It is safe to call on a
// partially built App.
func (a *App) Close() {
	if a.scope != nil {
		a.scope.Close()
	}
	if a.snapshots != nil {
		a.snapshots.Close()
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
}

// FileOpener opens seed and SURT source files relative to dir when their
// names are not absolute.
func FileOpener(dir string) decide.Opener {
	return func(name string) (io.ReadCloser, error) {
		if dir != "" && !filepath.IsAbs(name) {
			name = filepath.Join(dir, name)
		}
		return os.Open(name)
	}
}
