package curi

import (
	"bytes"
	"encoding/base32"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Uncalculated marks a size or length that has not been determined yet.
const Uncalculated int64 = -1

// LocalizedError is a non-fatal error recorded against one processing stage.
type LocalizedError struct {
	Stage   string
	Err     error
	Message string
}

// CrawlURI is a Candidate that has been scheduled and carries fetch state.
type CrawlURI struct {
	*Candidate

	ordinal        int64
	fetchStatus    int
	fetchAttempts  int
	deferrals      int
	contentSize    int64
	contentLength  int64
	contentType    string
	contentDigest  []byte
	digestScheme   string
	prerequisite   bool
	userAgent      string
	threadNumber   int
	outlinks       []Link
	discarded      int
	linksExtracted bool

	maxOutlinks    int
	persistentKeys []string
}

// Ordinal is the serial number assigned when the record was scheduled.
func (c *CrawlURI) Ordinal() int64 { return c.ordinal }

func (c *CrawlURI) FetchStatus() int { return c.fetchStatus }

func (c *CrawlURI) SetFetchStatus(s int) { c.fetchStatus = s }

func (c *CrawlURI) FetchAttempts() int { return c.fetchAttempts }

// IncrementFetchAttempts bumps and returns the attempt counter.
func (c *CrawlURI) IncrementFetchAttempts() int {
	c.fetchAttempts++
	return c.fetchAttempts
}

func (c *CrawlURI) ResetFetchAttempts() { c.fetchAttempts = 0 }

func (c *CrawlURI) Deferrals() int { return c.deferrals }

func (c *CrawlURI) IncrementDeferrals() { c.deferrals++ }

func (c *CrawlURI) ResetDeferrals() { c.deferrals = 0 }

// ContentSize is the recorded size including protocol headers.
func (c *CrawlURI) ContentSize() int64 { return c.contentSize }

func (c *CrawlURI) SetContentSize(n int64) { c.contentSize = n }

// ContentLength is the size of the response body alone.
func (c *CrawlURI) ContentLength() int64 { return c.contentLength }

func (c *CrawlURI) SetContentLength(n int64) { c.contentLength = n }

// ContentType returns the response content type, "" when unknown.
func (c *CrawlURI) ContentType() string { return c.contentType }

func (c *CrawlURI) SetContentType(ct string) { c.contentType = ct }

// SetContentDigest stores a digest value and the algorithm that produced it.
func (c *CrawlURI) SetContentDigest(scheme string, digest []byte) {
	c.digestScheme = scheme
	c.contentDigest = digest
}

// ContentDigest returns the raw digest bytes.
func (c *CrawlURI) ContentDigest() []byte { return c.contentDigest }

// ContentDigestString returns the digest as "scheme:BASE32", or "" if none.
func (c *CrawlURI) ContentDigestString() string {
	if c.contentDigest == nil {
		return ""
	}
	return c.digestScheme + ":" + base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(c.contentDigest)
}

// IsPrerequisite reports whether the record was scheduled as another
// URI's prerequisite, either by flag or by its last hop.
func (c *CrawlURI) IsPrerequisite() bool {
	return c.prerequisite || c.Candidate.IsPrerequisite()
}

func (c *CrawlURI) SetPrerequisite(b bool) { c.prerequisite = b }

// SetPrerequisiteURI records a URI that must be fetched before this one.
func (c *CrawlURI) SetPrerequisiteURI(u string) {
	c.Attrs().Put(KeyPrerequisiteURI, u)
}

// PrerequisiteURI returns the recorded prerequisite, if any.
func (c *CrawlURI) PrerequisiteURI() (string, bool) {
	return c.Attrs().String(KeyPrerequisiteURI)
}

// UserAgent returns the per-URI agent override, "" for the crawl default.
func (c *CrawlURI) UserAgent() string { return c.userAgent }

func (c *CrawlURI) SetUserAgent(ua string) { c.userAgent = ua }

func (c *CrawlURI) ThreadNumber() int { return c.threadNumber }

func (c *CrawlURI) SetThreadNumber(n int) { c.threadNumber = n }

// AddOutlink appends l unless the outlink cap is reached, in which case
// the discard counter is incremented instead.
func (c *CrawlURI) AddOutlink(l Link) bool {
	if len(c.outlinks) >= c.maxOutlinks {
		c.discarded++
		return false
	}
	c.outlinks = append(c.outlinks, l)
	return true
}

// Outlinks returns the retained outlinks.
func (c *CrawlURI) Outlinks() []Link { return c.outlinks }

// OutlinksSize is the number of retained outlinks.
func (c *CrawlURI) OutlinksSize() int { return len(c.outlinks) }

// DiscardedOutlinks counts links dropped by the cap.
func (c *CrawlURI) DiscardedOutlinks() int { return c.discarded }

func (c *CrawlURI) ClearOutlinks() { c.outlinks = nil }

// LinkExtractorFinished marks link extraction done and annotates the
// number of discarded outlinks, if any.
func (c *CrawlURI) LinkExtractorFinished() {
	c.linksExtracted = true
	if c.discarded > 0 {
		c.AddAnnotation("dol:" + strconv.Itoa(c.discarded))
	}
}

// HasBeenLinkExtracted reports whether LinkExtractorFinished was called.
func (c *CrawlURI) HasBeenLinkExtracted() bool { return c.linksExtracted }

// AddAnnotation appends a short tag. Tags must not contain commas.
func (c *CrawlURI) AddAnnotation(tag string) {
	a := c.Attrs()
	if prev, ok := a.String(KeyAnnotations); ok && prev != "" {
		a.Put(KeyAnnotations, prev+","+tag)
		return
	}
	a.Put(KeyAnnotations, tag)
}

// Annotations returns the comma-joined annotations.
func (c *CrawlURI) Annotations() string {
	s, _ := c.Attrs().String(KeyAnnotations)
	return s
}

// HasAnnotation reports whether tag is among the annotations.
func (c *CrawlURI) HasAnnotation(tag string) bool {
	for _, a := range strings.Split(c.Annotations(), ",") {
		if a == tag {
			return true
		}
	}
	return false
}

// AddLocalizedError records err against stage and annotates it as
// "le:<kind>@<stage>".
func (c *CrawlURI) AddLocalizedError(stage string, err error, msg string) {
	errs, _ := Object[[]LocalizedError](c.Attrs(), KeyLocalizedErrors)
	c.Attrs().Put(KeyLocalizedErrors, append(errs, LocalizedError{Stage: stage, Err: err, Message: msg}))
	c.AddAnnotation("le:" + errorKind(err) + "@" + stage)
}

// errorKind is the unqualified type name of err, e.g. "PathError".
func errorKind(err error) string {
	if err == nil {
		return "error"
	}
	name := strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// LocalizedErrors returns the errors recorded by AddLocalizedError.
func (c *CrawlURI) LocalizedErrors() []LocalizedError {
	errs, _ := Object[[]LocalizedError](c.Attrs(), KeyLocalizedErrors)
	return errs
}

// SetResponseHeaders records an HTTP exchange. Its presence is what makes
// IsHTTPTransaction true.
func (c *CrawlURI) SetResponseHeaders(h http.Header) {
	if h == nil {
		h = http.Header{}
	}
	c.Attrs().Put(KeyHTTPTransaction, h)
}

// ResponseHeaders returns the recorded response headers, if any.
func (c *CrawlURI) ResponseHeaders() (http.Header, bool) {
	return Object[http.Header](c.Attrs(), KeyHTTPTransaction)
}

// IsHTTPTransaction reports whether an HTTP exchange was recorded.
func (c *CrawlURI) IsHTTPTransaction() bool {
	return c.Attrs().Contains(KeyHTTPTransaction)
}

// HasIdenticalDigest reports whether the content digest equals the one
// recorded under KeyPreviousDigest on an earlier visit.
func (c *CrawlURI) HasIdenticalDigest() bool {
	prev, ok := Object[[]byte](c.Attrs(), KeyPreviousDigest)
	return ok && len(prev) > 0 && bytes.Equal(prev, c.contentDigest)
}

// IsSuccess reports any positive fetch status.
func (c *CrawlURI) IsSuccess() bool { return c.fetchStatus > 0 }

// Is2XXSuccess reports a status in [200, 300).
func (c *CrawlURI) Is2XXSuccess() bool {
	return c.fetchStatus >= 200 && c.fetchStatus < 300
}

// ProcessingCleanup resets per-pass fetch state. Only persistent and
// heritable attributes survive.
func (c *CrawlURI) ProcessingCleanup() {
	c.fetchStatus = StatusUnattempted
	c.prerequisite = false
	c.contentSize = Uncalculated
	c.contentLength = Uncalculated
	c.linksExtracted = false
	c.attrs = persistentAttrs(c.Candidate, c.persistentKeys)
}

// Report renders "CrawlURI <uri> <path> <via>".
func (c *CrawlURI) Report() string {
	return c.report("CrawlURI")
}

func persistentAttrs(c *Candidate, persistent []string) *Attrs {
	out := NewAttrs()
	out.CopyKeysFrom(persistent, c.attrs)
	if keys := c.HeritableKeys(); keys != nil {
		out.CopyKeysFrom(keys, c.attrs)
	}
	return out
}
