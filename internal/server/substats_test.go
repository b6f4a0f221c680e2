package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlscope/internal/curi"
)

func TestSubstatsTally(t *testing.T) {
	t.Parallel()

	var s Substats
	fetch := func(status int, size int64) *curi.CrawlURI {
		c := pageFetch(t, "http://example.com/")
		c.SetFetchStatus(status)
		c.SetContentSize(size)
		return c
	}

	for i := 0; i < 5; i++ {
		s.Tally(fetch(0, 0), StageScheduled)
	}
	s.Tally(fetch(http.StatusOK, 100), StageSucceeded)
	s.Tally(fetch(http.StatusNotModified, 10), StageSucceeded)

	dup := fetch(http.StatusOK, 40)
	dup.SetContentDigest("sha1", []byte{1, 2, 3})
	dup.Attrs().Put(curi.KeyPreviousDigest, []byte{1, 2, 3})
	s.Tally(dup, StageSucceeded)

	s.Tally(fetch(curi.StatusRobotsPrecluded, 0), StageDisregarded)
	s.Tally(fetch(curi.StatusConnectFailed, 0), StageRetried)
	s.Tally(fetch(http.StatusNotFound, 7), StageFailed)

	c := s.Counts()
	require.Equal(t, int64(5), c.TotalScheduled)
	require.Equal(t, int64(3), c.FetchSuccesses)
	require.Equal(t, int64(4), c.FetchResponses)
	require.Equal(t, int64(1), c.FetchFailures)
	require.Equal(t, int64(1), c.FetchDisregards)
	require.Equal(t, int64(1), c.RobotsDenials)
	require.Equal(t, int64(1), c.FetchNonResponses)
	require.Equal(t, int64(150), c.SuccessBytes)
	require.Equal(t, int64(157), c.TotalBytes)
	require.Equal(t, int64(107), c.NovelBytes)
	require.Equal(t, int64(2), c.NovelURLs)
	require.Equal(t, int64(1), c.NotModifiedURLs)
	require.Equal(t, int64(1), c.DupByHashURLs)
	require.Equal(t, int64(0), s.Remaining())
	require.Equal(t, int64(4), s.RecordedFinishes())
}

func TestSubstatsIgnoresNil(t *testing.T) {
	t.Parallel()

	var s Substats
	s.Tally(nil, StageScheduled)
	require.Zero(t, s.Counts().TotalScheduled)
	require.Equal(t, "disregarded", StageDisregarded.String())
}
