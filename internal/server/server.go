// Package server holds the per-server and per-host identity records that
// robots policy and politeness accounting key off, and the cache that
// shares them between workers.
package server

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/crawlscope/internal/curi"
	"github.com/JakeFAU/crawlscope/internal/robots"
)

const (
	// RobotsNotFetched is reported by RobotsFetchedMillis before the first
	// robots.txt resolution.
	RobotsNotFetched int64 = -1
	// MinRobotsRetries is how many failed robots.txt fetches are tolerated
	// before the policy may resolve without a response.
	MinRobotsRetries = 3
	// AnnotationNoHTTPResponse marks a connection that closed before any
	// response bytes arrived.
	AnnotationNoHTTPResponse = "no-http-response"
)

// RobotsOutcome describes how UpdateRobots resolved a robots.txt fetch.
type RobotsOutcome string

// Robots resolution outcomes.
const (
	RobotsRetry       RobotsOutcome = "retry"
	RobotsIgnored     RobotsOutcome = "ignored"
	RobotsUnavailable RobotsOutcome = "unavailable"
	RobotsNon2XX      RobotsOutcome = "non-2xx"
	RobotsParsed      RobotsOutcome = "parsed"
	RobotsParseError  RobotsOutcome = "parse-error"
)

// Valid reports whether the outcome leaves the server with a usable policy.
func (o RobotsOutcome) Valid() bool {
	return o != RobotsRetry && o != RobotsUnavailable
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Server is the shared identity record of one host[:port].
type Server struct {
	key   string
	port  int
	clock Clock

	mu            sync.Mutex
	policy        *robots.Policy
	robotsFetched time.Time
	validRobots   bool
	connErrors    int

	substats Substats
}

func newServer(key string, clock Clock) *Server {
	port := -1
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		if p, err := strconv.Atoi(key[i+1:]); err == nil {
			port = p
		}
	}
	return &Server{key: key, port: port, clock: clock}
}

// Key returns the server key.
func (s *Server) Key() string { return s.key }

// Port returns the explicit port in the key, or -1.
func (s *Server) Port() int { return s.port }

func (s *Server) String() string { return "Server(" + s.key + ")" }

// Robots returns the current policy, which is nil until resolved.
func (s *Server) Robots() *robots.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

// SetRobots installs p as a valid policy.
func (s *Server) SetRobots(p *robots.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
	s.validRobots = p != nil
}

// IsValidRobots reports whether robots.txt has been resolved to a policy.
func (s *Server) IsValidRobots() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validRobots
}

// RobotsFetchedMillis returns when robots.txt was last resolved, in Unix
// milliseconds, or RobotsNotFetched.
func (s *Server) RobotsFetchedMillis() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.robotsFetched.IsZero() {
		return RobotsNotFetched
	}
	return s.robotsFetched.UnixMilli()
}

// RobotsExpired reports whether robots.txt must be fetched again. A
// validity of zero keeps a fetched policy forever.
func (s *Server) RobotsExpired(validity time.Duration) bool {
	s.mu.Lock()
	fetched := s.robotsFetched
	s.mu.Unlock()
	if fetched.IsZero() {
		return true
	}
	if validity == 0 {
		return false
	}
	return fetched.Add(validity).Before(s.clock.Now())
}

// UpdateRobots resolves the robots.txt fetch recorded on c, whose response
// body is body, under honoring h. All fields change together. c's fetch
// status may be rewritten to StatusDeemedNotFound to stop further retries.
func (s *Server) UpdateRobots(c *curi.CrawlURI, body []byte, h robots.Honoring) RobotsOutcome {
	now := s.clock.Now()
	policy, valid, outcome := resolveRobots(c, body, h)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.robotsFetched = now
	s.validRobots = valid
	if valid {
		s.policy = policy
	}
	return outcome
}

func resolveRobots(c *curi.CrawlURI, body []byte, h robots.Honoring) (*robots.Policy, bool, RobotsOutcome) {
	status := c.FetchStatus()
	gotSomething := c.IsHTTPTransaction() && (status > 0 || status == curi.StatusDeemedNotFound)
	if !gotSomething && c.FetchAttempts() < MinRobotsRetries {
		return nil, false, RobotsRetry
	}
	if h.Type == robots.Ignore {
		if status < 0 {
			c.SetFetchStatus(curi.StatusDeemedNotFound)
		}
		return robots.AllowAll(), true, RobotsIgnored
	}
	if status == curi.StatusConnectLost && strings.Contains(c.Annotations(), AnnotationNoHTTPResponse) {
		c.SetFetchStatus(curi.StatusDeemedNotFound)
		gotSomething = true
	}
	if !gotSomething {
		return nil, false, RobotsUnavailable
	}
	if !c.Is2XXSuccess() {
		return robots.AllowAll(), true, RobotsNon2XX
	}
	if h.Type == robots.Custom {
		body = []byte(h.CustomRobots)
	}
	policy, err := robots.PolicyFor(body, h)
	if err != nil {
		c.AddLocalizedError("robots", err, "robots.txt parsing error")
		return robots.AllowAll(), true, RobotsParseError
	}
	return policy, true, RobotsParsed
}

// IsExcludedByRobots reports whether the resolved policy forbids userAgent
// from fetching c. Without a valid policy nothing is excluded.
func (s *Server) IsExcludedByRobots(c *curi.CrawlURI, userAgent string) bool {
	s.mu.Lock()
	policy, valid := s.policy, s.validRobots
	s.mu.Unlock()
	if !valid || policy == nil {
		return false
	}
	return policy.Disallows(c, userAgent)
}

// CrawlDelay returns the crawl delay in seconds declared for userAgent, or
// -1 if none is known.
func (s *Server) CrawlDelay(userAgent string) float64 {
	s.mu.Lock()
	policy, valid := s.policy, s.validRobots
	s.mu.Unlock()
	if !valid || policy == nil {
		return -1
	}
	return policy.CrawlDelay(userAgent)
}

// IncrementConsecutiveConnectionErrors records a failed connection.
func (s *Server) IncrementConsecutiveConnectionErrors() {
	s.mu.Lock()
	s.connErrors++
	s.mu.Unlock()
}

// ResetConsecutiveConnectionErrors clears the connection error streak.
func (s *Server) ResetConsecutiveConnectionErrors() {
	s.mu.Lock()
	s.connErrors = 0
	s.mu.Unlock()
}

// ConsecutiveConnectionErrors returns the current connection error streak.
func (s *Server) ConsecutiveConnectionErrors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connErrors
}

// Substats returns the server's crawl statistics.
func (s *Server) Substats() *Substats { return &s.substats }

// Snapshot is the persisted form of a Server.
type Snapshot struct {
	Key                         string           `json:"key"`
	Robots                      *robots.Snapshot `json:"robots,omitempty"`
	RobotsFetched               time.Time        `json:"robots_fetched"`
	ValidRobots                 bool             `json:"valid_robots"`
	ConsecutiveConnectionErrors int              `json:"consecutive_connection_errors"`
	Counts                      Counts           `json:"counts"`
}

// Snapshot captures the server's state.
func (s *Server) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Key:                         s.key,
		RobotsFetched:               s.robotsFetched,
		ValidRobots:                 s.validRobots,
		ConsecutiveConnectionErrors: s.connErrors,
	}
	if s.policy != nil {
		rs := s.policy.Snapshot()
		snap.Robots = &rs
	}
	s.mu.Unlock()
	snap.Counts = s.substats.Counts()
	return snap
}

// Restore replaces the server's state with snap. Normal robots policies
// are re-parsed under h.
func (s *Server) Restore(snap Snapshot, h robots.Honoring) error {
	if snap.Key != s.key {
		return fmt.Errorf("restore %s: snapshot belongs to %q", s, snap.Key)
	}
	var policy *robots.Policy
	if snap.Robots != nil {
		p, err := robots.FromSnapshot(*snap.Robots, h)
		if err != nil {
			return fmt.Errorf("restore %s: %w", s, err)
		}
		policy = p
	}
	s.mu.Lock()
	s.policy = policy
	s.robotsFetched = snap.RobotsFetched
	s.validRobots = snap.ValidRobots && policy != nil
	s.connErrors = snap.ConsecutiveConnectionErrors
	s.mu.Unlock()
	s.substats.restore(snap.Counts)
	return nil
}
