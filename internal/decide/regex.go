package decide

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/crawlscope/internal/curi"
	"github.com/JakeFAU/crawlscope/internal/settings"
)

// Parameter names shared by the pattern rules.
const (
	ParamRegexp     = "regexp"
	ParamRegexpList = "regexp-list"
	ParamListLogic  = "list-logic"
	ParamPreset     = "use-preset-pattern"
	ParamTarget     = "target-status"
)

// File pattern presets.
const (
	PresetAll    = "All"
	PresetImages = "Images"
	PresetAudio  = "Audio"
	PresetVideo  = "Video"
	PresetMisc   = "Miscellaneous"
	PresetCustom = "Custom"
)

var presetPatterns = map[string]*regexp.Regexp{
	PresetImages: regexp.MustCompile(`^.*(?i)(\.(bmp|gif|jpe?g|png|svg|tiff?))$`),
	PresetAudio:  regexp.MustCompile(`^.*(?i)(\.(aac|aiff?|m3u|m4a|midi?|mp2|mp3|mp4|mpa|ogg|ra|ram|wav|wma))$`),
	PresetVideo:  regexp.MustCompile(`^.*(?i)(\.(asf|asx|avi|flv|mov|mp4|mpeg|mpg|qt|ram|rm|smil|wmv))$`),
	PresetMisc:   regexp.MustCompile(`^.*(?i)(\.(doc|pdf|ppt|swf))$`),
	PresetAll: regexp.MustCompile(`^.*(?i)(\.(bmp|gif|jpe?g|png|svg|tiff?|aac|aiff?|m3u|m4a|midi?|mp2` +
		`|mp3|mp4|mpa|ogg|ra|ram|wav|wma|asf|asx|avi|flv|mov|mp4|mpeg|mpg|qt` +
		`|ram|rm|smil|wmv|doc|pdf|ppt|swf))$`),
}

// MatchesRegexp answers d when the whole URI matches the "regexp"
// parameter. Without a pattern it passes.
func MatchesRegexp(name string, d Decision, p *settings.Params) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		re, ok := p.Regexp(s, ParamRegexp)
		return ok && re.MatchString(s.Core().String())
	})
}

// NotMatchesRegexp answers d when the URI does not match "regexp".
// Without a pattern it passes.
func NotMatchesRegexp(name string, d Decision, p *settings.Params) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		re, ok := p.Regexp(s, ParamRegexp)
		return ok && !re.MatchString(s.Core().String())
	})
}

// MatchesListRegexp answers d when the URI matches any ("OR", the default)
// or every ("AND") pattern in "regexp-list". An empty list passes.
func MatchesListRegexp(name string, d Decision, p *settings.Params) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		pats := p.Strings(s, ParamRegexpList)
		if len(pats) == 0 {
			return false
		}
		or := !strings.EqualFold(p.String(s, ParamListLogic, "OR"), "AND")
		str := s.Core().String()
		for _, pat := range pats {
			re, ok := p.Compile(ParamRegexpList, pat)
			matched := ok && re.MatchString(str)
			if or && matched {
				return true
			}
			if !or && !matched {
				return false
			}
		}
		return !or
	})
}

// MatchesFilePattern answers d when the URI ends in a file extension of
// the "use-preset-pattern" family, or matches "regexp" under Custom.
func MatchesFilePattern(name string, d Decision, p *settings.Params) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		preset := p.String(s, ParamPreset, PresetAll)
		if strings.EqualFold(preset, PresetCustom) {
			re, ok := p.Regexp(s, ParamRegexp)
			return ok && re.MatchString(s.Core().String())
		}
		for key, re := range presetPatterns {
			if strings.EqualFold(key, preset) {
				return re.MatchString(s.Core().String())
			}
		}
		return false
	})
}

// ClassKeyMatchesRegexp answers d when the assigned class key matches
// "regexp".
func ClassKeyMatchesRegexp(name string, d Decision, p *settings.Params) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		re, ok := p.Regexp(s, ParamRegexp)
		return ok && re.MatchString(s.Core().ClassKey())
	})
}

// FetchStatusMatchesRegexp answers d when the decimal fetch status of a
// fetched URI matches "regexp".
func FetchStatusMatchesRegexp(name string, d Decision, p *settings.Params) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		c, ok := fetched(s)
		if !ok {
			return false
		}
		re, ok := p.Regexp(s, ParamRegexp)
		return ok && re.MatchString(strconv.Itoa(c.FetchStatus()))
	})
}

// FetchStatus answers d when a fetched URI's status equals
// "target-status".
func FetchStatus(name string, d Decision, p *settings.Params) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		c, ok := fetched(s)
		return ok && c.FetchStatus() == p.Int(s, ParamTarget, 0)
	})
}

// ContentTypeMatchesRegexp answers d when a fetched URI's content type
// matches "regexp". A URI without a content type passes.
func ContentTypeMatchesRegexp(name string, d Decision, p *settings.Params) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		c, ok := fetched(s)
		if !ok || c.ContentType() == "" {
			return false
		}
		re, ok := p.Regexp(s, ParamRegexp)
		return ok && re.MatchString(c.ContentType())
	})
}

// ContentTypeNotMatchesRegexp answers d when a fetched URI's content type
// does not match "regexp". A URI without a content type passes.
func ContentTypeNotMatchesRegexp(name string, d Decision, p *settings.Params) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		c, ok := fetched(s)
		if !ok || c.ContentType() == "" {
			return false
		}
		re, ok := p.Regexp(s, ParamRegexp)
		return ok && !re.MatchString(c.ContentType())
	})
}
