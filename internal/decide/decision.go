// Package decide evaluates ordered chains of scope rules. Every rule
// answers ACCEPT, REJECT or PASS for a URI; a chain's verdict is the last
// non-PASS answer.
package decide

import (
	"fmt"
	"strings"
)

// Decision is a rule's verdict.
type Decision int

// Decisions.
const (
	Pass Decision = iota
	Accept
	Reject
)

func (d Decision) String() string {
	switch d {
	case Pass:
		return "PASS"
	case Accept:
		return "ACCEPT"
	case Reject:
		return "REJECT"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// ParseDecision maps "accept", "reject" or "pass" in any case to a Decision.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PASS":
		return Pass, nil
	case "ACCEPT":
		return Accept, nil
	case "REJECT":
		return Reject, nil
	}
	return Pass, fmt.Errorf("unknown decision %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Decision) UnmarshalText(b []byte) error {
	v, err := ParseDecision(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
