// Package config loads and validates crawlscope configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/crawlscope/internal/decide"
	"github.com/JakeFAU/crawlscope/internal/robots"
	"github.com/JakeFAU/crawlscope/internal/settings"
)

// EnvPrefix prefixes every environment override, e.g. CRAWLSCOPE_SERVER_PORT.
const EnvPrefix = "CRAWLSCOPE"

// Dump backends.
const (
	DumpNone   = "none"
	DumpLocal  = "local"
	DumpGCS    = "gcs"
	DumpMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig       `mapstructure:"logging"`
	Server    ServerConfig        `mapstructure:"server"`
	Crawler   CrawlerConfig       `mapstructure:"crawler"`
	Robots    RobotsConfig        `mapstructure:"robots"`
	Scope     ScopeConfig         `mapstructure:"scope"`
	Overrides []settings.Override `mapstructure:"overrides"`
	Metrics   MetricsConfig       `mapstructure:"metrics"`
	Store     StoreConfig         `mapstructure:"store"`
	Dump      DumpConfig          `mapstructure:"dump"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ServerConfig controls the debug HTTP server.
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ShutdownSeconds int `mapstructure:"shutdown_seconds"`
}

// CrawlerConfig holds record-model options.
type CrawlerConfig struct {
	UserAgent      string   `mapstructure:"user_agent"`
	MaxOutlinks    int      `mapstructure:"max_outlinks"`
	PersistentKeys []string `mapstructure:"persistent_keys"`
	DNSValiditySec int      `mapstructure:"dns_validity_seconds"`
}

// RobotsConfig selects how robots.txt is honored.
type RobotsConfig struct {
	Honoring      string   `mapstructure:"honoring"`
	Masquerade    bool     `mapstructure:"masquerade"`
	CustomRobots  string   `mapstructure:"custom_robots"`
	UserAgents    []string `mapstructure:"user_agents"`
	ValiditySec   int      `mapstructure:"validity_seconds"`
	CalculateOnly bool     `mapstructure:"calculate_only"`
}

// ScopeConfig describes the decision chain and its prefix sources.
type ScopeConfig struct {
	SeedsFile       string            `mapstructure:"seeds_file"`
	SurtsSourceFile string            `mapstructure:"surts_source_file"`
	SeedsAsPrefixes bool              `mapstructure:"seeds_as_prefixes"`
	DumpPath        string            `mapstructure:"dump_path"`
	Rules           []decide.RuleSpec `mapstructure:"rules"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// StoreConfig locates the server snapshot table. An empty DSN disables
// checkpointing.
type StoreConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// DumpConfig selects where prefix dumps go.
type DumpConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_seconds", 10)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (compatible; crawlscope/0.1)")
	v.SetDefault("crawler.max_outlinks", 6000)
	v.SetDefault("crawler.dns_validity_seconds", 6*60*60)
	v.SetDefault("robots.honoring", robots.Classic.String())
	v.SetDefault("robots.validity_seconds", 24*60*60)
	v.SetDefault("scope.seeds_as_prefixes", true)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("store.table", "server_snapshots")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("dump.backend", DumpNone)
	v.SetDefault("dump.base_dir", "dumps")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if strings.TrimSpace(c.Crawler.UserAgent) == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	h, err := c.Honoring()
	if err != nil {
		return fmt.Errorf("robots.honoring: %w", err)
	}
	if h.Type == robots.Custom && h.CustomRobots == "" {
		return fmt.Errorf("robots.custom_robots must be set when honoring is custom")
	}
	if h.Type == robots.MostFavoredSet && len(h.UserAgents) == 0 {
		return fmt.Errorf("robots.user_agents must be set when honoring is most-favored-set")
	}
	if err := validateRules(c.Scope.Rules); err != nil {
		return fmt.Errorf("scope.rules: %w", err)
	}
	for i, o := range c.Overrides {
		if o.Scope == "" || o.Rule == "" {
			return fmt.Errorf("overrides[%d]: scope and rule must be set", i)
		}
	}
	switch c.Dump.Backend {
	case DumpNone, DumpMemory:
	case DumpLocal:
		if c.Dump.BaseDir == "" {
			return fmt.Errorf("dump.base_dir must be set when dump.backend is local")
		}
	case DumpGCS:
		if c.Dump.Bucket == "" {
			return fmt.Errorf("dump.bucket must be set when dump.backend is gcs")
		}
	default:
		return fmt.Errorf("dump.backend %q is not one of none, local, gcs, memory", c.Dump.Backend)
	}
	if c.Store.DSN != "" && c.Store.MaxConns <= 0 {
		return fmt.Errorf("store.max_conns must be > 0")
	}
	return nil
}

func validateRules(specs []decide.RuleSpec) error {
	known := decide.Kinds()
	for i, spec := range specs {
		kind := strings.ToLower(strings.TrimSpace(spec.Kind))
		if !slices.Contains(known, kind) {
			return fmt.Errorf("[%d]: %w: %q", i, decide.ErrUnknownRule, spec.Kind)
		}
		if spec.Decision != "" {
			if _, err := decide.ParseDecision(spec.Decision); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		if err := validateRules(spec.Rules); err != nil {
			return fmt.Errorf("[%d]%w", i, err)
		}
	}
	return nil
}

// Honoring converts the robots section.
func (c Config) Honoring() (robots.Honoring, error) {
	ht, err := robots.ParseHonoringType(c.Robots.Honoring)
	if err != nil {
		return robots.Honoring{}, err
	}
	return robots.Honoring{
		Type:         ht,
		Masquerade:   c.Robots.Masquerade,
		CustomRobots: c.Robots.CustomRobots,
		UserAgents:   slices.Clone(c.Robots.UserAgents),
	}, nil
}

// RobotsValidity returns the robots.txt freshness window. A negative
// setting never expires.
func (c Config) RobotsValidity() time.Duration {
	if c.Robots.ValiditySec < 0 {
		return -1
	}
	return time.Duration(c.Robots.ValiditySec) * time.Second
}

// DNSValidity returns the minimum lifetime of a resolved address.
func (c Config) DNSValidity() time.Duration {
	return time.Duration(c.Crawler.DNSValiditySec) * time.Second
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}

// ErrNoRules is returned by ScopeRules when no rules are configured.
var ErrNoRules = errors.New("no scope rules configured")

// ScopeRules returns the configured rules with the scope-wide SURT source
// and seeds-as-prefixes settings filled into every prefix rule that does
// not set them itself.
func (c Config) ScopeRules() ([]decide.RuleSpec, error) {
	if len(c.Scope.Rules) == 0 {
		return nil, ErrNoRules
	}
	return c.fillSurtDefaults(c.Scope.Rules), nil
}

var surtKinds = []string{"surt-prefixed", "on-hosts", "on-domains", "not-on-hosts", "not-on-domains", "scope-plus-one"}

func (c Config) fillSurtDefaults(specs []decide.RuleSpec) []decide.RuleSpec {
	out := make([]decide.RuleSpec, len(specs))
	for i, spec := range specs {
		if slices.Contains(surtKinds, strings.ToLower(spec.Kind)) {
			params := make(map[string]any, len(spec.Params)+2)
			for k, v := range spec.Params {
				params[k] = v
			}
			if _, ok := params[decide.ParamSurtsSourceFile]; !ok && c.Scope.SurtsSourceFile != "" {
				params[decide.ParamSurtsSourceFile] = c.Scope.SurtsSourceFile
			}
			if _, ok := params[decide.ParamSeedsAsSurtPrefixes]; !ok {
				params[decide.ParamSeedsAsSurtPrefixes] = c.Scope.SeedsAsPrefixes
			}
			spec.Params = params
		}
		spec.Rules = c.fillSurtDefaults(spec.Rules)
		out[i] = spec
	}
	return out
}
