// Package uuid issues the run and request ids that tag crawlscope logs.
package uuid

import (
	"github.com/google/uuid"
)

// New returns a time-ordered UUIDv7 string so ids sort by issue time in
// log storage. If the v7 clock source fails it falls back to a random v4.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Valid reports whether s parses as a UUID of any version.
func Valid(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// OrNew returns s if it is a valid UUID and a fresh id otherwise. Inbound
// request ids pass through it so callers cannot inject arbitrary text
// into log fields.
func OrNew(s string) string {
	if Valid(s) {
		return s
	}
	return New()
}
