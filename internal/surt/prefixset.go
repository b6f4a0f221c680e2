package surt

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// directive marks a source line as an explicit prefix rather than a seed.
const directive = "+"

// PrefixSet is a sorted set of strings in which no member is a prefix of
// another. A PrefixSet is not safe for concurrent mutation; share it
// through a Holder.
type PrefixSet struct {
	items []string
}

// NewPrefixSet returns a set holding the given prefixes.
func NewPrefixSet(prefixes ...string) *PrefixSet {
	p := &PrefixSet{}
	for _, s := range prefixes {
		p.Add(s)
	}
	return p
}

// Len returns the number of prefixes.
func (p *PrefixSet) Len() int {
	if p == nil {
		return 0
	}
	return len(p.items)
}

// Prefixes returns a sorted copy of the members.
func (p *PrefixSet) Prefixes() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.items))
	copy(out, p.items)
	return out
}

// Clone returns an independent copy.
func (p *PrefixSet) Clone() *PrefixSet {
	return &PrefixSet{items: p.Prefixes()}
}

// Contains reports exact membership.
func (p *PrefixSet) Contains(s string) bool {
	if p == nil {
		return false
	}
	i := sort.SearchStrings(p.items, s)
	return i < len(p.items) && p.items[i] == s
}

// ContainsPrefixOf reports whether some member is a prefix of s. Because
// members never prefix one another, only the greatest member sorting
// before s can qualify.
func (p *PrefixSet) ContainsPrefixOf(s string) bool {
	if p == nil {
		return false
	}
	i := sort.SearchStrings(p.items, s)
	if i < len(p.items) && p.items[i] == s {
		return true
	}
	return i > 0 && strings.HasPrefix(s, p.items[i-1])
}

// Add inserts s unless an existing member already prefixes it, and drops
// any members s prefixes. It reports whether s was inserted.
func (p *PrefixSet) Add(s string) bool {
	i := sort.SearchStrings(p.items, s)
	if i < len(p.items) && p.items[i] == s {
		return false
	}
	if i > 0 && strings.HasPrefix(s, p.items[i-1]) {
		return false
	}
	j := i
	for j < len(p.items) && strings.HasPrefix(p.items[j], s) {
		j++
	}
	switch {
	case j > i:
		p.items[i] = s
		p.items = append(p.items[:i+1], p.items[j:]...)
	default:
		p.items = append(p.items, "")
		copy(p.items[i+1:], p.items[i:])
		p.items[i] = s
	}
	return true
}

// Remove deletes s and reports whether it was present.
func (p *PrefixSet) Remove(s string) bool {
	i := sort.SearchStrings(p.items, s)
	if i >= len(p.items) || p.items[i] != s {
		return false
	}
	p.items = append(p.items[:i], p.items[i+1:]...)
	return true
}

// ConvertAll rewrites every member through conv. Members that collapse to
// the same prefix, or under a broader one, are merged.
func (p *PrefixSet) ConvertAll(conv func(string) string) {
	old := p.items
	p.items = nil
	for _, s := range old {
		p.Add(conv(s))
	}
}

// ConvertAllToHosts rewrites every member to host scope.
func (p *PrefixSet) ConvertAllToHosts() { p.ConvertAll(ConvertPrefixToHost) }

// ConvertAllToDomains rewrites every member to domain scope.
func (p *PrefixSet) ConvertAllToDomains() { p.ConvertAll(ConvertPrefixToDomain) }

// AddFromPlain adds the implied prefix of a plain URI or hostname.
func (p *PrefixSet) AddFromPlain(u string) bool {
	return p.Add(PrefixFromPlain(u))
}

// ImportFrom reads one literal SURT prefix per line.
func (p *PrefixSet) ImportFrom(r io.Reader) error {
	return eachEntry(r, func(s string) {
		p.Add(strings.ToLower(s))
	})
}

// ImportFromURIs reads one plain URI or hostname per line.
func (p *PrefixSet) ImportFromURIs(r io.Reader) error {
	return eachEntry(r, func(s string) {
		p.AddFromPlain(s)
	})
}

// ImportFromMixed reads a seeds-style source. Lines starting with "+" are
// explicit prefixes, either literal SURTs (containing "(") or plain URIs to
// convert. Other lines are seeds, converted only when deduceFromSeeds is set.
func (p *PrefixSet) ImportFromMixed(r io.Reader, deduceFromSeeds bool) error {
	return eachEntry(r, func(s string) {
		if rest, ok := strings.CutPrefix(s, directive); ok {
			rest = strings.TrimSpace(rest)
			if strings.Index(rest, "(") > 0 {
				p.Add(strings.ToLower(rest))
			} else if rest != "" {
				p.AddFromPlain(rest)
			}
			return
		}
		if deduceFromSeeds {
			p.AddFromPlain(s)
		}
	})
}

// ExportTo writes the members to w, one per line, in sorted order.
func (p *PrefixSet) ExportTo(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, s := range p.Prefixes() {
		if _, err := bw.WriteString(s + "\n"); err != nil {
			return fmt.Errorf("export surt prefixes: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("export surt prefixes: %w", err)
	}
	return nil
}

// eachEntry calls fn for the first token of every line that is neither
// blank nor a comment. A "#" token ends the line; a line with more than one
// token before any comment is malformed and skipped. "+ entry" is read as
// "+entry".
func eachEntry(r io.Reader, fn func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if fields[0] == directive && len(fields) > 1 {
			fields = append([]string{directive + fields[1]}, fields[2:]...)
		}
		if len(fields) > 1 && !strings.HasPrefix(fields[1], "#") {
			continue
		}
		fn(fields[0])
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read prefix source: %w", err)
	}
	return nil
}
