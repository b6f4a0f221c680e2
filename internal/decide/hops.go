package decide

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlscope/internal/curi"
	"github.com/JakeFAU/crawlscope/internal/settings"
)

// Hop and path limits.
const (
	ParamMaxHops            = "max-hops"
	ParamMaxPathDepth       = "max-path-depth"
	ParamMaxRepetitions     = "max-repetitions"
	ParamMaxTransHops       = "max-trans-hops"
	ParamMaxSpeculativeHops = "max-speculative-hops"

	DefaultMaxHops            = 20
	DefaultMaxPathDepth       = 20
	DefaultMaxRepetitions     = 2
	DefaultMaxTransHops       = 3
	DefaultMaxSpeculativeHops = 1
)

// pathologicalTimeout bounds one backtracking match.
const pathologicalTimeout = 250 * time.Millisecond

// TooManyHops answers d when the hop path is longer than "max-hops".
func TooManyHops(name string, d Decision, p *settings.Params) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		return s.Core().HopCount() > p.Int(s, ParamMaxHops, DefaultMaxHops)
	})
}

// TooManyPathSegments answers d when the URI holds more than
// "max-path-depth" plus two slashes, the two being the scheme's.
func TooManyPathSegments(name string, d Decision, p *settings.Params) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		limit := p.Int(s, ParamMaxPathDepth, DefaultMaxPathDepth) + 2
		return strings.Count(s.Core().String(), "/") > limit
	})
}

// Transclusion answers d when the hop path ends in between one and
// "max-trans-hops" non-navlink hops, of which at most
// "max-speculative-hops" are speculative.
func Transclusion(name string, d Decision, p *settings.Params) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		path := s.Core().PathFromSeed()
		count, spec := 0, 0
		for i := len(path) - 1; i >= 0; i-- {
			hop := curi.Hop(path[i])
			if hop == curi.NavlinkHop {
				break
			}
			count++
			if hop == curi.SpeculativeHop {
				spec++
			}
		}
		return count > 0 &&
			spec <= p.Int(s, ParamMaxSpeculativeHops, DefaultMaxSpeculativeHops) &&
			count <= p.Int(s, ParamMaxTransHops, DefaultMaxTransHops)
	})
}

// PathologicalPath answers d when one path segment occurs more than
// "max-repetitions" times in a row. Zero disables the rule. The limit is
// not overridable per host, so the pattern is built once.
type PathologicalPath struct {
	*Predicated
	once   sync.Once
	re     *regexp2.Regexp
	p      *settings.Params
	logger *zap.Logger
}

// NewPathologicalPath returns the repeated-segment trap detector.
func NewPathologicalPath(name string, d Decision, p *settings.Params, logger *zap.Logger) *PathologicalPath {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &PathologicalPath{p: p, logger: logger}
	r.Predicated = NewPredicated(name, d, r.matches)
	return r
}

func (r *PathologicalPath) matches(s curi.Subject) bool {
	r.once.Do(r.compile)
	if r.re == nil {
		return false
	}
	ok, err := r.re.MatchString(s.Core().String())
	if err != nil {
		r.logger.Warn("pathological path match abandoned",
			zap.String("rule", r.Name()), zap.String("uri", s.Core().String()), zap.Error(err))
		return false
	}
	return ok
}

func (r *PathologicalPath) compile() {
	reps := DefaultMaxRepetitions
	if v, ok := r.p.Global(ParamMaxRepetitions); ok {
		if n, err := cast.ToIntE(v); err == nil {
			reps = n
		}
	}
	if reps <= 0 {
		return
	}
	re, err := regexp2.Compile(`^.*?/(.*?/)\1{`+strconv.Itoa(reps)+`,}.*$`, regexp2.None)
	if err != nil {
		r.logger.Error("pathological path pattern", zap.String("rule", r.Name()), zap.Error(err))
		return
	}
	re.MatchTimeout = pathologicalTimeout
	r.re = re
}
