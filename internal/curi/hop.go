package curi

// Hop is a single-character code recording how a URI was reached.
type Hop byte

// Hop codes appended to a record's path from seed on promotion.
const (
	NavlinkHop      Hop = 'L'
	PrerequisiteHop Hop = 'P'
	EmbedHop        Hop = 'E'
	SpeculativeHop  Hop = 'X'
	ReferHop        Hop = 'R' // redirects and other server-side referrals
	InferredHop     Hop = 'I'
)

// String returns the hop code as a one-character string.
func (h Hop) String() string {
	return string(rune(h))
}

// Valid reports whether h is one of the known hop codes.
func (h Hop) Valid() bool {
	switch h {
	case NavlinkHop, PrerequisiteHop, EmbedHop, SpeculativeHop, ReferHop, InferredHop:
		return true
	}
	return false
}

// Link is an outbound reference discovered while processing a URI.
type Link struct {
	// Destination may be absolute or relative to the source URI.
	Destination string
	// Context is free-form discovery context, e.g. "a/@href".
	Context     string
	Hop         Hop
}
