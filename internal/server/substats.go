package server

import (
	"net/http"
	"sync"

	"github.com/JakeFAU/crawlscope/internal/curi"
)

// Stage is a point in a URI's lifecycle that statistics are tallied at.
type Stage int

// Tally stages.
const (
	StageScheduled Stage = iota
	StageRetried
	StageSucceeded
	StageDisregarded
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageScheduled:
		return "scheduled"
	case StageRetried:
		return "retried"
	case StageSucceeded:
		return "succeeded"
	case StageDisregarded:
		return "disregarded"
	case StageFailed:
		return "failed"
	}
	return "unknown"
}

// Counts is a point-in-time copy of a Substats.
type Counts struct {
	TotalScheduled    int64 `json:"total_scheduled"`
	FetchSuccesses    int64 `json:"fetch_successes"`
	FetchFailures     int64 `json:"fetch_failures"`
	FetchDisregards   int64 `json:"fetch_disregards"`
	FetchResponses    int64 `json:"fetch_responses"`
	RobotsDenials     int64 `json:"robots_denials"`
	SuccessBytes      int64 `json:"success_bytes"`
	TotalBytes        int64 `json:"total_bytes"`
	FetchNonResponses int64 `json:"fetch_non_responses"`
	NovelBytes        int64 `json:"novel_bytes"`
	NovelURLs         int64 `json:"novel_urls"`
	NotModifiedBytes  int64 `json:"not_modified_bytes"`
	NotModifiedURLs   int64 `json:"not_modified_urls"`
	DupByHashBytes    int64 `json:"dup_by_hash_bytes"`
	DupByHashURLs     int64 `json:"dup_by_hash_urls"`
}

// Remaining is the number of scheduled URIs without a final outcome.
func (c Counts) Remaining() int64 {
	return c.TotalScheduled - (c.FetchSuccesses + c.FetchFailures + c.FetchDisregards)
}

// RecordedFinishes counts URIs that were fetched to a final success or
// failure.
func (c Counts) RecordedFinishes() int64 {
	return c.FetchSuccesses + c.FetchFailures
}

// Substats aggregates per-server or per-host crawl statistics.
type Substats struct {
	mu sync.Mutex
	c  Counts
}

// Tally folds c's outcome at stage into the statistics.
func (s *Substats) Tally(c *curi.CrawlURI, stage Stage) {
	if c == nil {
		return
	}
	status := c.FetchStatus()
	size := max(c.ContentSize(), 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch stage {
	case StageScheduled:
		s.c.TotalScheduled++
	case StageRetried:
		if status <= 0 {
			s.c.FetchNonResponses++
		}
	case StageSucceeded:
		s.c.FetchSuccesses++
		s.c.FetchResponses++
		s.c.TotalBytes += size
		s.c.SuccessBytes += size
		s.tallyNovelty(c, size)
	case StageDisregarded:
		s.c.FetchDisregards++
		if status == curi.StatusRobotsPrecluded {
			s.c.RobotsDenials++
		}
	case StageFailed:
		if status <= 0 {
			s.c.FetchNonResponses++
		} else {
			s.c.FetchResponses++
			s.c.TotalBytes += size
			s.tallyNovelty(c, size)
		}
		s.c.FetchFailures++
	}
}

func (s *Substats) tallyNovelty(c *curi.CrawlURI, size int64) {
	switch {
	case c.FetchStatus() == http.StatusNotModified:
		s.c.NotModifiedBytes += size
		s.c.NotModifiedURLs++
	case c.HasIdenticalDigest():
		s.c.DupByHashBytes += size
		s.c.DupByHashURLs++
	default:
		s.c.NovelBytes += size
		s.c.NovelURLs++
	}
}

// Counts returns a copy of the current statistics.
func (s *Substats) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c
}

// Remaining is Counts().Remaining().
func (s *Substats) Remaining() int64 { return s.Counts().Remaining() }

// RecordedFinishes is Counts().RecordedFinishes().
func (s *Substats) RecordedFinishes() int64 { return s.Counts().RecordedFinishes() }

func (s *Substats) restore(c Counts) {
	s.mu.Lock()
	s.c = c
	s.mu.Unlock()
}
