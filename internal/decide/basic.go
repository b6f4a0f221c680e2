package decide

import (
	"github.com/JakeFAU/crawlscope/internal/curi"
)

// SeedAccept ACCEPTs seeds.
func SeedAccept(name string) *Predicated {
	return NewPredicated(name, Accept, func(s curi.Subject) bool {
		return s.Core().IsSeed()
	})
}

// PrerequisiteAccept ACCEPTs URIs reached by a prerequisite hop.
func PrerequisiteAccept(name string) *Predicated {
	return NewPredicated(name, Accept, func(s curi.Subject) bool {
		return s.Core().IsPrerequisite()
	})
}

// HasVia answers d for URIs that have a referrer.
func HasVia(name string, d Decision) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		return s.Core().Via() != nil
	})
}

// IdenticalDigest answers d for fetched URIs whose content digest matches
// the one recorded on the previous visit.
func IdenticalDigest(name string, d Decision) *Predicated {
	return NewPredicated(name, d, func(s curi.Subject) bool {
		c, ok := fetched(s)
		return ok && c.HasIdenticalDigest()
	})
}
