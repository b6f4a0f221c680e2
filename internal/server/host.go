package server

import (
	"net/netip"
	"sync"
	"time"
)

const (
	// IPNeverExpires is the TTL of an address that needs no lookup, such as
	// a host named by an IP literal.
	IPNeverExpires time.Duration = -1
	// DefaultIPValidity is used when the operator's validity is negative.
	DefaultIPValidity = 6 * time.Hour
)

// Host is the shared identity record of one host name, used for DNS state
// and host-level accounting.
type Host struct {
	name string

	mu          sync.Mutex
	ip          netip.Addr
	ipFetched   time.Time
	ipTTL       time.Duration
	countryCode string

	substats Substats
}

func newHost(name string) *Host {
	h := &Host{name: name}
	if addr, err := netip.ParseAddr(name); err == nil {
		h.ip = addr
		h.ipTTL = IPNeverExpires
	}
	return h
}

// Name returns the host name.
func (h *Host) Name() string { return h.name }

func (h *Host) String() string { return "Host(" + h.name + ")" }

// SetIP records a resolved address, when it was fetched and the record's TTL.
func (h *Host) SetIP(addr netip.Addr, fetched time.Time, ttl time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ip = addr
	h.ipFetched = fetched
	h.ipTTL = ttl
}

// IP returns the resolved address, if any.
func (h *Host) IP() (netip.Addr, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ip, h.ip.IsValid()
}

// HasBeenLookedUp reports whether an address is known.
func (h *Host) HasBeenLookedUp() bool {
	_, ok := h.IP()
	return ok
}

// IPTTL returns the TTL of the resolved address.
func (h *Host) IPTTL() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ipTTL
}

// IsIPExpired reports whether the address must be looked up again at now.
// The larger of validity and the record TTL applies; a zero validity never
// expires.
func (h *Host) IsIPExpired(now time.Time, validity time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ip.IsValid() {
		return true
	}
	if h.ipTTL == IPNeverExpires || validity == 0 {
		return false
	}
	if validity < 0 {
		validity = DefaultIPValidity
	}
	if h.ipTTL > validity {
		validity = h.ipTTL
	}
	return h.ipFetched.Add(validity).Before(now)
}

// CountryCode returns the geolocated country, if set.
func (h *Host) CountryCode() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.countryCode
}

// SetCountryCode records the geolocated country.
func (h *Host) SetCountryCode(cc string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.countryCode = cc
}

// Substats returns the host's crawl statistics.
func (h *Host) Substats() *Substats { return &h.substats }
