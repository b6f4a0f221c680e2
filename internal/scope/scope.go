// Package scope is the entry point collaborators use: it wires the rule
// chain, the robots subsystem, the SURT prefix sets and the server cache
// behind the handful of operations a crawler needs per URI.
package scope

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlscope/internal/curi"
	"github.com/JakeFAU/crawlscope/internal/decide"
	"github.com/JakeFAU/crawlscope/internal/metrics"
	"github.com/JakeFAU/crawlscope/internal/robots"
	"github.com/JakeFAU/crawlscope/internal/server"
	"github.com/JakeFAU/crawlscope/internal/settings"
	"github.com/JakeFAU/crawlscope/internal/storage"
)

// Defaults for validity windows.
const (
	DefaultRobotsValidity = 24 * time.Hour
	DefaultDNSValidity    = server.DefaultIPValidity
	// DefaultSequenceName labels the decision chain in metrics and logs.
	DefaultSequenceName = "scope"
)

// Config is the static configuration of a Scope.
type Config struct {
	// UserAgent is presented to robots policies.
	UserAgent string
	Honoring  robots.Honoring
	// RobotsValidity is how long a resolved robots.txt stays fresh. Zero
	// selects DefaultRobotsValidity; a negative value never expires.
	RobotsValidity time.Duration
	// CalculateRobotsOnly annotates robots exclusions instead of enforcing
	// them.
	CalculateRobotsOnly bool
	// DNSValidity is the minimum lifetime of a looked-up address. Zero
	// selects DefaultDNSValidity.
	DNSValidity time.Duration
	// SequenceName labels the chain; empty selects DefaultSequenceName.
	SequenceName string
	Rules        []decide.RuleSpec
	Overrides    []settings.Override
	Model        curi.ModelOptions
	// SeedsFile is read by SURT rules that deduce prefixes from seeds.
	SeedsFile string
	// DumpPath is the object path DumpSurts writes to.
	DumpPath string
}

// SnapshotStore persists server records between runs.
type SnapshotStore interface {
	Save(ctx context.Context, snap server.Snapshot) error
	List(ctx context.Context) ([]server.Snapshot, error)
}

// Option injects a collaborator.
type Option func(*Scope)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scope) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock used by server records and expiry checks.
func WithClock(c server.Clock) Option {
	return func(s *Scope) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithFrontier hands budget-aware rules the frontier's queue classifier
// and budget lookup.
func WithFrontier(classify decide.Classifier, budgets decide.Budgets) Option {
	return func(s *Scope) {
		s.classify = classify
		s.budgets = budgets
	}
}

// WithGeoLookup sets the country lookup for geolocation rules.
func WithGeoLookup(g decide.GeoLookup) Option {
	return func(s *Scope) { s.geo = g }
}

// WithBlobStore sets where DumpSurts writes.
func WithBlobStore(b storage.BlobStore) Option {
	return func(s *Scope) { s.blobs = b }
}

// WithSnapshotStore sets where Checkpoint and Restore keep server records.
func WithSnapshotStore(st SnapshotStore) Option {
	return func(s *Scope) { s.snapshots = st }
}

// WithOpener replaces os.Open for seed and SURT source files.
func WithOpener(open decide.Opener) Option {
	return func(s *Scope) {
		if open != nil {
			s.open = open
		}
	}
}

// Scope answers scope and politeness questions for a crawl. It is safe
// for concurrent use.
type Scope struct {
	cfg    Config
	logger *zap.Logger
	clock  server.Clock

	model    *curi.Model
	servers  *server.Cache
	seq      *decide.Sequence
	surts    []*decide.SurtRule
	seedSubs []decide.SeedListener

	classify  decide.Classifier
	budgets   decide.Budgets
	geo       decide.GeoLookup
	blobs     storage.BlobStore
	snapshots SnapshotStore
	open      decide.Opener

	closeOnce sync.Once
}

// New builds a Scope from cfg.
func New(cfg Config, opts ...Option) (*Scope, error) {
	s := &Scope{
		cfg:    cfg,
		logger: zap.NewNop(),
		open:   func(name string) (io.ReadCloser, error) { return os.Open(name) },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.RobotsValidity == 0 {
		s.cfg.RobotsValidity = DefaultRobotsValidity
	}
	if s.cfg.DNSValidity == 0 {
		s.cfg.DNSValidity = DefaultDNSValidity
	}
	if s.cfg.SequenceName == "" {
		s.cfg.SequenceName = DefaultSequenceName
	}

	cacheOpts := []server.Option{server.WithLogger(s.logger)}
	if s.clock != nil {
		cacheOpts = append(cacheOpts, server.WithClock(s.clock))
	}
	s.servers = server.NewCache(cacheOpts...)
	s.model = curi.NewModel(cfg.Model)

	deps := decide.Deps{
		Logger:     s.logger,
		Overrides:  settings.NewResolver(cfg.Overrides),
		Model:      s.model,
		Open:       s.open,
		Classifier: s.classify,
		Budgets:    s.budgets,
		Hosts:      s.servers,
		Geo:        s.geo,
	}
	if cfg.SeedsFile != "" {
		deps.Seeds = func() (io.ReadCloser, error) { return s.open(cfg.SeedsFile) }
	}
	seq, err := decide.Build(s.cfg.SequenceName, cfg.Rules, deps)
	if err != nil {
		s.servers.Cleanup()
		return nil, fmt.Errorf("build scope rules: %w", err)
	}
	s.seq = seq
	seq.Walk(func(r decide.Rule) {
		if sr, ok := r.(*decide.SurtRule); ok {
			s.surts = append(s.surts, sr)
		}
		if l, ok := r.(decide.SeedListener); ok {
			s.seedSubs = append(s.seedSubs, l)
		}
	})
	s.publishPrefixCount()
	s.logger.Info("scope ready",
		zap.String("sequence", seq.Name()),
		zap.Int("rules", seq.Len()),
		zap.Int("surt_rules", len(s.surts)),
		zap.String("honoring", cfg.Honoring.Type.String()),
	)
	return s, nil
}

// Model returns the record factory shared by the scope's rules.
func (s *Scope) Model() *curi.Model { return s.model }

// Servers returns the server/host cache.
func (s *Scope) Servers() *server.Cache { return s.servers }

// Sequence returns the decision chain.
func (s *Scope) Sequence() *decide.Sequence { return s.seq }

// Decide runs the decision chain on c.
func (s *Scope) Decide(c curi.Subject) decide.Decision {
	if c == nil || c.Core() == nil {
		return decide.Pass
	}
	return s.seq.Decide(c)
}

// ServerKeyFor returns the key of the server that serves u.
func (s *Scope) ServerKeyFor(u *url.URL) (string, bool) {
	return server.ServerKey(u)
}

// Promote builds the record for a link discovered on parent.
func (s *Scope) Promote(parent curi.Subject, link curi.Link) (*curi.Candidate, error) {
	return s.model.Promote(parent, link)
}

// Outlinks promotes every outlink of c and returns the ones the chain
// accepts. Links that cannot be promoted are logged and skipped, and the
// outlinks c had to discard are counted.
func (s *Scope) Outlinks(c *curi.CrawlURI) []*curi.Candidate {
	metrics.AddDiscardedOutlinks(c.DiscardedOutlinks())
	var out []*curi.Candidate
	for _, link := range c.Outlinks() {
		child, err := s.model.Promote(c, link)
		if err != nil {
			s.logger.Debug("outlink not promoted",
				zap.String("uri", c.String()), zap.String("link", link.Destination), zap.Error(err))
			continue
		}
		if s.seq.Decide(child) == decide.Accept {
			out = append(out, child)
		}
	}
	return out
}

// AddSeed returns a seed record for u and tells every seed listener, so
// SURT rules that treat seeds as prefixes widen their scope.
func (s *Scope) AddSeed(u *url.URL) *curi.Candidate {
	seed := s.model.NewSeed(u)
	added := 0
	for _, l := range s.seedSubs {
		if l.AddedSeed(u) {
			added++
		}
	}
	if added > 0 {
		s.publishPrefixCount()
	}
	s.logger.Debug("seed added", zap.String("uri", seed.String()), zap.Int("prefix_sets_changed", added))
	return seed
}

// RecordFinish tallies c's outcome at stage on its server and host.
func (s *Scope) RecordFinish(c *curi.CrawlURI, stage server.Stage) {
	if srv := s.servers.GetServerForURI(c); srv != nil {
		srv.Substats().Tally(c, stage)
	}
	if h := s.servers.GetHostForURI(c); h != nil {
		h.Substats().Tally(c, stage)
	}
}

// NeedsDNS reports whether c's host address is unknown or stale.
func (s *Scope) NeedsDNS(c curi.Subject) bool {
	h := s.servers.GetHostForURI(c)
	if h == nil {
		return false
	}
	return h.IsIPExpired(s.now(), s.cfg.DNSValidity)
}

// Checkpoint saves every cached server record to the snapshot store and
// returns how many were saved.
func (s *Scope) Checkpoint(ctx context.Context) (int, error) {
	if s.snapshots == nil {
		return 0, fmt.Errorf("checkpoint: no snapshot store configured")
	}
	var snaps []server.Snapshot
	s.servers.ForAllServers(func(srv *server.Server) {
		snaps = append(snaps, srv.Snapshot())
	})
	for i, snap := range snaps {
		if err := ctx.Err(); err != nil {
			return i, fmt.Errorf("checkpoint: %w", err)
		}
		if err := s.snapshots.Save(ctx, snap); err != nil {
			return i, fmt.Errorf("checkpoint: %w", err)
		}
	}
	s.logger.Info("servers checkpointed", zap.Int("servers", len(snaps)))
	return len(snaps), nil
}

// Restore loads every stored server record into the cache and returns how
// many were restored. Records that fail to restore are logged and skipped.
func (s *Scope) Restore(ctx context.Context) (int, error) {
	if s.snapshots == nil {
		return 0, fmt.Errorf("restore: no snapshot store configured")
	}
	snaps, err := s.snapshots.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}
	n := 0
	for _, snap := range snaps {
		srv := s.servers.GetServerFor(snap.Key)
		if srv == nil {
			return n, fmt.Errorf("restore: scope is closed")
		}
		if err := srv.Restore(snap, s.cfg.Honoring); err != nil {
			s.logger.Warn("server snapshot skipped", zap.String("server", snap.Key), zap.Error(err))
			continue
		}
		n++
	}
	s.logger.Info("servers restored", zap.Int("servers", n), zap.Int("stored", len(snaps)))
	return n, nil
}

// Close releases the server cache. It is safe to call more than once.
func (s *Scope) Close() {
	s.closeOnce.Do(func() {
		s.servers.Cleanup()
		s.logger.Info("scope closed")
	})
}

func (s *Scope) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now()
}
