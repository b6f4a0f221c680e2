package robots

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownHonoring is returned when a honoring type name is not recognized.
var ErrUnknownHonoring = errors.New("unknown robots honoring type")

// HonoringType selects how robots.txt directives are interpreted.
type HonoringType int

// Honoring types.
const (
	// Classic obeys the first section whose agent token occurs in the
	// crawler's user agent.
	Classic HonoringType = iota
	// Ignore treats every server as allow-all.
	Ignore
	// Custom applies operator-supplied robots text instead of the fetched file.
	Custom
	// MostFavored allows a URI if any declared section allows it.
	MostFavored
	// MostFavoredSet is MostFavored restricted to sections matching the
	// operator's agent list.
	MostFavoredSet
)

var honoringNames = map[HonoringType]string{
	Classic:        "classic",
	Ignore:         "ignore",
	Custom:         "custom",
	MostFavored:    "most-favored",
	MostFavoredSet: "most-favored-set",
}

func (t HonoringType) String() string {
	if s, ok := honoringNames[t]; ok {
		return s
	}
	return fmt.Sprintf("HonoringType(%d)", int(t))
}

// ParseHonoringType maps a configuration name to a HonoringType.
func ParseHonoringType(s string) (HonoringType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range honoringNames {
		if n == name {
			return t, nil
		}
	}
	return Classic, fmt.Errorf("%w: %q", ErrUnknownHonoring, s)
}

// Honoring is the operator's robots configuration for one scope.
type Honoring struct {
	Type HonoringType
	// Masquerade makes the crawler present the agent token whose section
	// decided a most-favored verdict.
	Masquerade bool
	// CustomRobots replaces the fetched file under Custom.
	CustomRobots string
	// UserAgents is the candidate list for MostFavoredSet.
	UserAgents []string
}

func (h Honoring) recomputesPerAgent() bool {
	return h.Type == Classic || h.Type == Custom
}

func (h Honoring) mostFavored() bool {
	return h.Type == MostFavored || h.Type == MostFavoredSet
}
