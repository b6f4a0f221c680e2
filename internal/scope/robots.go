package scope

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlscope/internal/curi"
	"github.com/JakeFAU/crawlscope/internal/metrics"
	"github.com/JakeFAU/crawlscope/internal/server"
)

// AnnotationRobotsExcluded marks a URI robots.txt would have excluded when
// exclusions are only calculated.
const AnnotationRobotsExcluded = "robotExcluded"

const robotsPath = "/robots.txt"

// Gate is the outcome of the robots precondition check.
type Gate int

// Gate values.
const (
	// Proceed lets the fetch go ahead.
	Proceed Gate = iota
	// NeedsRobots defers the fetch until the server's robots.txt, named in
	// the URI's prerequisite, has been fetched.
	NeedsRobots
	// Precluded means robots.txt forbids the fetch.
	Precluded
	// RobotsFailed means robots.txt could not be resolved.
	RobotsFailed
)

func (g Gate) String() string {
	switch g {
	case Proceed:
		return "proceed"
	case NeedsRobots:
		return "needs-robots"
	case Precluded:
		return "precluded"
	case RobotsFailed:
		return "robots-failed"
	}
	return fmt.Sprintf("Gate(%d)", int(g))
}

func robotsEligible(c *curi.CrawlURI) bool {
	u := c.URI()
	return u != nil && (u.Scheme == "http" || u.Scheme == "https")
}

// CheckRobots decides whether c may be fetched now as far as its server's
// robots.txt is concerned, updating c's status or prerequisite to match.
func (s *Scope) CheckRobots(c *curi.CrawlURI) Gate {
	if !robotsEligible(c) {
		return Proceed
	}
	if isRobotsURI(c) {
		c.SetPrerequisite(true)
		return Proceed
	}
	srv := s.servers.GetServerForURI(c)
	if srv == nil {
		return Proceed
	}
	if srv.RobotsExpired(s.robotsValidity()) {
		robotsURI, err := curi.Resolve(c.URI(), robotsPath)
		if err != nil {
			c.SetFetchStatus(curi.StatusRobotsPrereqFailure)
			return RobotsFailed
		}
		c.SetPrerequisiteURI(robotsURI.String())
		return NeedsRobots
	}
	if !srv.IsValidRobots() {
		c.SetFetchStatus(curi.StatusRobotsPrereqFailure)
		s.logger.Debug("robots unresolved", zap.String("uri", c.String()), zap.String("server", srv.Key()))
		return RobotsFailed
	}
	if !s.IsExcludedByRobots(c, s.cfg.UserAgent) {
		return Proceed
	}
	if s.cfg.CalculateRobotsOnly {
		c.AddAnnotation(AnnotationRobotsExcluded)
		return Proceed
	}
	c.SetFetchStatus(curi.StatusRobotsPrecluded)
	return Precluded
}

// IsExcludedByRobots reports whether c's server policy forbids userAgent
// from fetching c. An empty userAgent selects the configured one.
func (s *Scope) IsExcludedByRobots(c *curi.CrawlURI, userAgent string) bool {
	srv := s.servers.GetServerForURI(c)
	if srv == nil {
		return false
	}
	excluded := srv.IsExcludedByRobots(c, s.agent(userAgent))
	metrics.ObserveRobotsVerdict(excluded)
	return excluded
}

// CrawlDelay returns the crawl delay in seconds robots.txt declares for
// userAgent on subject's server, or -1.
func (s *Scope) CrawlDelay(subject curi.Subject, userAgent string) float64 {
	srv := s.servers.GetServerForURI(subject)
	if srv == nil {
		return -1
	}
	return srv.CrawlDelay(s.agent(userAgent))
}

func (s *Scope) agent(ua string) string {
	if ua == "" {
		return s.cfg.UserAgent
	}
	return ua
}

// RecordFetch folds a finished fetch of c into its server record: the
// connection error streak, and for robots.txt itself the policy. body is
// the response body and may be nil for anything but robots.txt.
func (s *Scope) RecordFetch(c *curi.CrawlURI, body []byte) {
	if !robotsEligible(c) {
		return
	}
	srv := s.servers.GetServerForURI(c)
	if srv == nil {
		return
	}
	switch status := c.FetchStatus(); {
	case status == curi.StatusConnectFailed || status == curi.StatusConnectLost:
		srv.IncrementConsecutiveConnectionErrors()
	case status > 0:
		srv.ResetConsecutiveConnectionErrors()
	}
	if isRobotsURI(c) {
		s.updateRobots(srv, c, body)
	}
}

// UpdateRobots resolves a robots.txt fetch for c's server.
func (s *Scope) UpdateRobots(c *curi.CrawlURI, body []byte) server.RobotsOutcome {
	srv := s.servers.GetServerForURI(c)
	if srv == nil {
		return server.RobotsUnavailable
	}
	return s.updateRobots(srv, c, body)
}

func (s *Scope) updateRobots(srv *server.Server, c *curi.CrawlURI, body []byte) server.RobotsOutcome {
	outcome := srv.UpdateRobots(c, body, s.cfg.Honoring)
	metrics.ObserveRobotsUpdate(string(outcome))
	fields := []zap.Field{
		zap.String("server", srv.Key()),
		zap.String("outcome", string(outcome)),
		zap.Int("status", c.FetchStatus()),
		zap.Int("attempts", c.FetchAttempts()),
	}
	switch outcome {
	case server.RobotsParseError, server.RobotsUnavailable:
		s.logger.Warn("robots.txt not usable", fields...)
	default:
		if p := srv.Robots(); p != nil {
			fields = append(fields, zap.Stringer("policy", p.Kind()))
		}
		s.logger.Debug("robots.txt resolved", fields...)
	}
	return outcome
}

// robotsValidity maps the configured window onto the server record's
// convention, where zero means forever.
func (s *Scope) robotsValidity() time.Duration {
	if s.cfg.RobotsValidity < 0 {
		return 0
	}
	return s.cfg.RobotsValidity
}

// isRobotsURI reports whether c names a robots.txt file.
func isRobotsURI(c *curi.CrawlURI) bool {
	return robotsEligible(c) && c.URI().EscapedPath() == robotsPath
}
