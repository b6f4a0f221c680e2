package settings

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlscope/internal/curi"
)

// Params resolves one rule's parameters for a subject: an override for
// the subject's host or domain if any, else the rule's configured value.
// Missing or malformed required values are logged once per parameter and
// reported as absent so the rule can degrade to PASS.
type Params struct {
	rule     string
	values   map[string]any
	res      *Resolver
	logger   *zap.Logger
	warned   sync.Map
	patterns sync.Map
}

// NewParams returns the parameters of rule. values may be nil.
func NewParams(rule string, values map[string]any, res *Resolver, logger *zap.Logger) *Params {
	if logger == nil {
		logger = zap.NewNop()
	}
	norm := make(map[string]any, len(values))
	for k, v := range values {
		norm[strings.ToLower(k)] = v
	}
	return &Params{rule: rule, values: norm, res: res, logger: logger}
}

// Rule returns the name the parameters belong to.
func (p *Params) Rule() string { return p.rule }

// Lookup returns the raw value of key for s.
func (p *Params) Lookup(s curi.Subject, key string) (any, bool) {
	if s != nil {
		if v, ok := p.res.Lookup(s.Core().URI(), p.rule, key); ok {
			return v, true
		}
	}
	return p.Global(key)
}

// Global returns the configured value of key, ignoring overrides. It is
// used for parameters that cannot vary per host.
func (p *Params) Global(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Int returns key as an int, or def when absent or malformed.
func (p *Params) Int(s curi.Subject, key string, def int) int {
	v, ok := p.Lookup(s, key)
	if !ok {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		p.warnOnce(key, "malformed integer parameter", err)
		return def
	}
	return n
}

// Int64 returns key as an int64, or def when absent or malformed.
func (p *Params) Int64(s curi.Subject, key string, def int64) int64 {
	v, ok := p.Lookup(s, key)
	if !ok {
		return def
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		p.warnOnce(key, "malformed integer parameter", err)
		return def
	}
	return n
}

// Bool returns key as a bool, or def when absent or malformed.
func (p *Params) Bool(s curi.Subject, key string, def bool) bool {
	v, ok := p.Lookup(s, key)
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		p.warnOnce(key, "malformed boolean parameter", err)
		return def
	}
	return b
}

// String returns key as a string, or def when absent.
func (p *Params) String(s curi.Subject, key, def string) string {
	v, ok := p.Lookup(s, key)
	if !ok {
		return def
	}
	str, err := cast.ToStringE(v)
	if err != nil {
		p.warnOnce(key, "malformed string parameter", err)
		return def
	}
	return str
}

// Required returns key as a non-empty string. Absence is logged once.
func (p *Params) Required(s curi.Subject, key string) (string, bool) {
	str := p.String(s, key, "")
	if str == "" {
		p.warnOnce(key, "missing required parameter", nil)
		return "", false
	}
	return str, true
}

// Strings returns key as a string list.
func (p *Params) Strings(s curi.Subject, key string) []string {
	v, ok := p.Lookup(s, key)
	if !ok {
		return nil
	}
	list, err := asList(v)
	if err != nil {
		p.warnOnce(key, "malformed list parameter", err)
		return nil
	}
	return list
}

// asList treats a lone string as a one-element list.
func asList(v any) ([]string, error) {
	if s, ok := v.(string); ok {
		return []string{s}, nil
	}
	list, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil, fmt.Errorf("not a string list: %w", err)
	}
	return list, nil
}

// Regexp returns the required pattern under key compiled to match whole
// strings.
func (p *Params) Regexp(s curi.Subject, key string) (*regexp.Regexp, bool) {
	pat, ok := p.Required(s, key)
	if !ok {
		return nil, false
	}
	return p.Compile(key, pat)
}

// Compile compiles pat anchored at both ends, caching the result. A bad
// pattern is logged once and reported as absent.
func (p *Params) Compile(key, pat string) (*regexp.Regexp, bool) {
	if v, ok := p.patterns.Load(pat); ok {
		re, _ := v.(*regexp.Regexp)
		return re, re != nil
	}
	re, err := regexp.Compile(`^(?:` + pat + `)$`)
	if err != nil {
		p.warnOnce(key+"="+pat, "bad regular expression", err)
		p.patterns.Store(pat, (*regexp.Regexp)(nil))
		return nil, false
	}
	p.patterns.Store(pat, re)
	return re, true
}

func (p *Params) warnOnce(key, msg string, err error) {
	if _, seen := p.warned.LoadOrStore(key, struct{}{}); seen {
		return
	}
	fields := []zap.Field{zap.String("rule", p.rule), zap.String("param", key)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	p.logger.Error(msg, fields...)
}

// Validate checks that every configured pattern among keys compiles.
func (p *Params) Validate(keys ...string) error {
	for _, key := range keys {
		v, ok := p.values[key]
		if !ok {
			continue
		}
		pats, err := asList(v)
		if err != nil {
			return fmt.Errorf("rule %s: param %s: %w", p.rule, key, err)
		}
		for _, pat := range pats {
			if _, err := regexp.Compile(`^(?:` + pat + `)$`); err != nil {
				return fmt.Errorf("rule %s: param %s: %w", p.rule, key, err)
			}
		}
	}
	return nil
}
