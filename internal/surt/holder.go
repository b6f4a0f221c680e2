package surt

import "sync/atomic"

// Holder publishes a PrefixSet to concurrent readers. A published set is
// never mutated: writers build or clone a set and swap it in whole.
type Holder struct {
	p atomic.Pointer[PrefixSet]
}

// NewHolder returns a Holder publishing set, or an empty set if nil.
func NewHolder(set *PrefixSet) *Holder {
	h := &Holder{}
	h.Store(set)
	return h
}

// Load returns the current set. Callers must not mutate it.
func (h *Holder) Load() *PrefixSet {
	if s := h.p.Load(); s != nil {
		return s
	}
	return &PrefixSet{}
}

// Store replaces the current set.
func (h *Holder) Store(set *PrefixSet) {
	if set == nil {
		set = &PrefixSet{}
	}
	h.p.Store(set)
}

// ContainsPrefixOf tests s against the current set.
func (h *Holder) ContainsPrefixOf(s string) bool {
	return h.Load().ContainsPrefixOf(s)
}

// Add clones the current set, adds prefix and swaps the clone in. It
// retries if another writer swapped first, and reports whether the prefix
// changed the set.
func (h *Holder) Add(prefix string) bool {
	for {
		old := h.p.Load()
		next := old.Clone()
		if !next.Add(prefix) {
			return false
		}
		if h.p.CompareAndSwap(old, next) {
			return true
		}
	}
}
