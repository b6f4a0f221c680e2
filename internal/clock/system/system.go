// Package system is the wall clock server records and dumps are stamped with.
package system

import "time"

// Clock reads the wall clock. Times are UTC so robots fetch times and
// dump names do not depend on the host's zone.
type Clock struct{}

// New returns the wall clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
