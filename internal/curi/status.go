package curi

import (
	"net/http"
	"strconv"
)

// Fetch status codes. Zero means the URI has not been attempted, positive
// values are protocol responses and negative values are internal outcomes.
const (
	StatusUnattempted = 0
	StatusDNSSuccess  = 1

	StatusConnectFailed       = -2
	StatusConnectLost         = -3
	StatusTimeout             = -4
	StatusRuntimeException    = -5
	StatusDomainUnresolvable  = -6
	StatusUnfetchable         = -7
	StatusTooManyRetries      = -8
	StatusDeferred            = -50
	StatusDomainPrereqFailure = -60
	StatusRobotsPrereqFailure = -61
	StatusOtherPrereqFailure  = -62
	StatusPrereqUnschedulable = -63
	StatusDeemedNotFound      = -404
	StatusSeriousError        = -3000
	StatusDeemedChaff         = -4000
	StatusTooManyLinkHops     = -4001
	StatusTooManyEmbedHops    = -4002
	StatusOutOfScope          = -5000
	StatusBlockedByUser       = -5001
	StatusBlockedByProcessor  = -5002
	StatusBlockedByQuota      = -5003
	StatusBlockedByRuntime    = -5004
	StatusDeletedByUser       = -6000
	StatusProcessingKilled    = -7000
	StatusRobotsPrecluded     = -9998
)

var internalStatusText = map[int]string{
	StatusUnattempted:         "Unattempted",
	StatusDNSSuccess:          "DNS-1-OK",
	StatusConnectFailed:       "Connection failed",
	StatusConnectLost:         "Connection lost",
	StatusTimeout:             "Timeout",
	StatusRuntimeException:    "Runtime exception",
	StatusDomainUnresolvable:  "Domain unresolvable",
	StatusUnfetchable:         "Unfetchable URI",
	StatusTooManyRetries:      "Too many retries",
	StatusDeferred:            "Deferred",
	StatusDomainPrereqFailure: "Domain prerequisite failure",
	StatusRobotsPrereqFailure: "Robots prerequisite failure",
	StatusOtherPrereqFailure:  "Other prerequisite failure",
	StatusPrereqUnschedulable: "Prerequisite unschedulable",
	StatusDeemedNotFound:      "Deemed not found",
	StatusSeriousError:        "Serious error",
	StatusDeemedChaff:         "Deemed chaff",
	StatusTooManyLinkHops:     "Too many link hops",
	StatusTooManyEmbedHops:    "Too many embed hops",
	StatusOutOfScope:          "Out of scope",
	StatusBlockedByUser:       "Blocked by user",
	StatusBlockedByProcessor:  "Blocked by custom processor",
	StatusBlockedByQuota:      "Blocked due to exceeding an established quota",
	StatusBlockedByRuntime:    "Blocked due to exceeding an established runtime",
	StatusDeletedByUser:       "Deleted by user",
	StatusProcessingKilled:    "Processing thread was killed",
	StatusRobotsPrecluded:     "Robots precluded",
}

// StatusString renders a fetch status for crawl logs, e.g. "HTTP-404-Not Found"
// or "Internal(-5000)-Out of scope".
func StatusString(code int) string {
	if code == StatusDNSSuccess {
		return internalStatusText[code]
	}
	if code > 1 {
		text := http.StatusText(code)
		if text == "" {
			return "HTTP-" + strconv.Itoa(code)
		}
		return "HTTP-" + strconv.Itoa(code) + "-" + text
	}
	if text, ok := internalStatusText[code]; ok {
		return "Internal(" + strconv.Itoa(code) + ")-" + text
	}
	return "Unknown(" + strconv.Itoa(code) + ")"
}
