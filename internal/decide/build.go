package decide

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlscope/internal/curi"
	"github.com/JakeFAU/crawlscope/internal/server"
	"github.com/JakeFAU/crawlscope/internal/settings"
)

// Filter rule parameters.
const (
	ParamTrueDecision  = "true-decision"
	ParamFalseDecision = "false-decision"
)

var (
	// ErrUnknownRule is returned for a rule kind Build does not know.
	ErrUnknownRule = errors.New("unknown rule kind")
	// ErrInvalidRule is returned for a rule whose configuration is unusable.
	ErrInvalidRule = errors.New("invalid rule")
)

// RuleSpec is the configured form of one rule. Rules lists the members
// of a "sequence" or the filters of a "filter".
type RuleSpec struct {
	Name     string         `mapstructure:"name" json:"name,omitempty"`
	Kind     string         `mapstructure:"kind" json:"kind"`
	Decision string         `mapstructure:"decision" json:"decision,omitempty"`
	Params   map[string]any `mapstructure:"params" json:"params,omitempty"`
	Rules    []RuleSpec     `mapstructure:"rules" json:"rules,omitempty"`
}

// Deps carries what rules need from the rest of the crawler. Every field
// is optional; rules that lack a dependency never match.
type Deps struct {
	Logger    *zap.Logger
	Overrides *settings.Resolver
	Model     *curi.Model
	// Seeds opens the seed list for SURT rules that deduce prefixes.
	Seeds func() (io.ReadCloser, error)
	// Open resolves source files named in params. Defaults to os.Open.
	Open       Opener
	Classifier Classifier
	Budgets    Budgets
	Hosts      *server.Cache
	Geo        GeoLookup
}

type kind struct {
	// def is the decision used when the RuleSpec names none.
	def Decision
	// fixed kinds reject any other decision.
	fixed bool
	// patterns are param keys validated as regular expressions.
	patterns []string
	build    buildFunc
}

type buildFunc func(b *builder, spec RuleSpec, d Decision, p *settings.Params) (Rule, error)

func always(fn func(name string) Rule) buildFunc {
	return func(_ *builder, spec RuleSpec, _ Decision, _ *settings.Params) (Rule, error) {
		return fn(spec.Name), nil
	}
}

func bare(fn func(name string, d Decision) *Predicated) buildFunc {
	return func(_ *builder, spec RuleSpec, d Decision, _ *settings.Params) (Rule, error) {
		return fn(spec.Name, d), nil
	}
}

func predicated(fn func(name string, d Decision, p *settings.Params) *Predicated) buildFunc {
	return func(_ *builder, spec RuleSpec, d Decision, p *settings.Params) (Rule, error) {
		return fn(spec.Name, d, p), nil
	}
}

func surtKind(m SurtMode) kind {
	return kind{def: Accept, build: func(b *builder, spec RuleSpec, d Decision, p *settings.Params) (Rule, error) {
		return NewSurtRule(spec.Name, d, m, p, SurtSources{Seeds: b.deps.Seeds, Open: b.deps.Open})
	}}
}

func buildConfigured(_ *builder, spec RuleSpec, d Decision, _ *settings.Params) (Rule, error) {
	return NewFixed(spec.Name, d), nil
}

func buildPathological(b *builder, spec RuleSpec, d Decision, p *settings.Params) (Rule, error) {
	return NewPathologicalPath(spec.Name, d, p, b.logger), nil
}

func buildRootRedirect(b *builder, spec RuleSpec, d Decision, _ *settings.Params) (Rule, error) {
	return RedirectFromRootServer(spec.Name, d, b.logger), nil
}

func buildOverbudget(b *builder, spec RuleSpec, d Decision, _ *settings.Params) (Rule, error) {
	if b.deps.Classifier == nil || b.deps.Budgets == nil {
		b.logger.Warn("queue budget rule has no frontier to consult", zap.String("rule", spec.Name))
	}
	return QueueOverbudget(spec.Name, d, b.deps.Model, b.deps.Classifier, b.deps.Budgets), nil
}

func buildGeo(b *builder, spec RuleSpec, d Decision, p *settings.Params) (Rule, error) {
	return ExternalGeoLocation(spec.Name, d, p, b.deps.Hosts, b.deps.Geo), nil
}

// ruleKinds returns a fresh registry of the kinds Build understands.
func ruleKinds() map[string]kind {
	re := []string{ParamRegexp}
	return map[string]kind{
		"accept":     {def: Accept, fixed: true, build: always(func(n string) Rule { return AcceptAll(n) })},
		"reject":     {def: Reject, fixed: true, build: always(func(n string) Rule { return RejectAll(n) })},
		"configured": {def: Accept, build: buildConfigured},

		"seed-accept":         {def: Accept, fixed: true, build: always(func(n string) Rule { return SeedAccept(n) })},
		"prerequisite-accept": {def: Accept, fixed: true, build: always(func(n string) Rule { return PrerequisiteAccept(n) })},

		"matches-regexp":           {def: Accept, patterns: re, build: predicated(MatchesRegexp)},
		"not-matches-regexp":       {def: Accept, patterns: re, build: predicated(NotMatchesRegexp)},
		"matches-list-regexp":      {def: Accept, patterns: []string{ParamRegexpList}, build: predicated(MatchesListRegexp)},
		"matches-file-pattern":     {def: Accept, patterns: re, build: predicated(MatchesFilePattern)},
		"class-key-matches-regexp": {def: Accept, patterns: re, build: predicated(ClassKeyMatchesRegexp)},

		"fetch-status":                    {def: Accept, build: predicated(FetchStatus)},
		"fetch-status-matches-regexp":     {def: Accept, patterns: re, build: predicated(FetchStatusMatchesRegexp)},
		"content-type-matches-regexp":     {def: Accept, patterns: re, build: predicated(ContentTypeMatchesRegexp)},
		"content-type-not-matches-regexp": {def: Accept, patterns: re, build: predicated(ContentTypeNotMatchesRegexp)},
		"exceeds-document-length":         {def: Accept, build: predicated(ExceedsDocumentLength)},
		"not-exceeds-document-length":     {def: Accept, build: predicated(NotExceedsDocumentLength)},
		"identical-digest":                {def: Reject, build: bare(IdenticalDigest)},

		"too-many-hops":          {def: Reject, build: predicated(TooManyHops)},
		"too-many-path-segments": {def: Reject, build: predicated(TooManyPathSegments)},
		"pathological-path":      {def: Reject, build: buildPathological},
		"transclusion":           {def: Accept, build: predicated(Transclusion)},
		"has-via":                {def: Accept, build: bare(HasVia)},

		"cross-topmost-assigned-hop": {def: Accept, build: bare(CrossTopmostAssignedHop)},
		"redirect-from-root-server":  {def: Accept, build: buildRootRedirect},
		"queue-overbudget":           {def: Reject, build: buildOverbudget},
		"external-geo-location":      {def: Accept, build: buildGeo},

		"surt-prefixed":  surtKind(SurtPrefixed),
		"on-hosts":       surtKind(OnHosts),
		"on-domains":     surtKind(OnDomains),
		"not-on-hosts":   surtKind(NotOnHosts),
		"not-on-domains": surtKind(NotOnDomains),
		"scope-plus-one": surtKind(ScopePlusOne),

		"filter":   {def: Accept, build: buildFilter},
		"sequence": {def: Pass, fixed: true, build: buildSequence},
	}
}

// Kinds lists the rule kinds Build understands.
func Kinds() []string {
	kinds := ruleKinds()
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type builder struct {
	deps   Deps
	logger *zap.Logger
	kinds  map[string]kind
	names  map[string]int
}

// Build assembles a named sequence from specs.
func Build(name string, specs []RuleSpec, deps Deps) (*Sequence, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Open == nil {
		deps.Open = func(path string) (io.ReadCloser, error) { return os.Open(path) }
	}
	if deps.Model == nil {
		deps.Model = curi.NewModel(curi.ModelOptions{})
	}
	b := &builder{deps: deps, logger: deps.Logger, kinds: ruleKinds(), names: map[string]int{}}
	rules, err := b.rules(specs)
	if err != nil {
		return nil, err
	}
	return NewSequence(name, b.logger, rules...), nil
}

func (b *builder) rules(specs []RuleSpec) ([]Rule, error) {
	out := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		r, err := b.rule(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (b *builder) rule(spec RuleSpec) (Rule, error) {
	k, ok := b.kinds[strings.ToLower(strings.TrimSpace(spec.Kind))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRule, spec.Kind)
	}
	spec.Name = b.uniqueName(spec)
	d := k.def
	if spec.Decision != "" {
		parsed, err := ParseDecision(spec.Decision)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRule, spec.Name, err)
		}
		if k.fixed && parsed != k.def {
			return nil, fmt.Errorf("%w: %s: decision of a %s rule is fixed", ErrInvalidRule, spec.Name, spec.Kind)
		}
		d = parsed
	}
	p := settings.NewParams(spec.Name, spec.Params, b.deps.Overrides, b.logger)
	if err := p.Validate(k.patterns...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	r, err := k.build(b, spec, d, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	return r, nil
}

// uniqueName defaults an unnamed rule to its kind and numbers repeats so
// per-rule overrides and log lines stay unambiguous.
func (b *builder) uniqueName(spec RuleSpec) string {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(spec.Kind))
	}
	b.names[name]++
	if n := b.names[name]; n > 1 {
		return fmt.Sprintf("%s#%d", name, n)
	}
	return name
}

func buildSequence(b *builder, spec RuleSpec, _ Decision, _ *settings.Params) (Rule, error) {
	rules, err := b.rules(spec.Rules)
	if err != nil {
		return nil, err
	}
	return NewSequence(spec.Name, b.logger, rules...), nil
}

func buildFilter(b *builder, spec RuleSpec, _ Decision, p *settings.Params) (Rule, error) {
	onTrue, err := decisionParam(p, ParamTrueDecision, Accept)
	if err != nil {
		return nil, err
	}
	onFalse, err := decisionParam(p, ParamFalseDecision, Reject)
	if err != nil {
		return nil, err
	}
	rules, err := b.rules(spec.Rules)
	if err != nil {
		return nil, err
	}
	filters := make([]Filter, 0, len(rules))
	for _, r := range rules {
		filters = append(filters, &DecidingFilter{Rule: r})
	}
	return NewFilterRule(spec.Name, onTrue, onFalse, filters...), nil
}

func decisionParam(p *settings.Params, key string, def Decision) (Decision, error) {
	v, ok := p.Global(key)
	if !ok {
		return def, nil
	}
	s, _ := v.(string)
	d, err := ParseDecision(s)
	if err != nil {
		return Pass, fmt.Errorf("rule %s: %s: %w", p.Rule(), key, err)
	}
	return d, nil
}
