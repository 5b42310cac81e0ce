// Package identity derives the opaque pseudo-identities used to
// deduplicate and throttle anonymous voters.
//
// All identities are keyed BLAKE2b-256 digests rendered as 64 hex chars.
// The key is a server-side salt, so a leaked votes table cannot be matched
// against known addresses without it.
package identity

import (
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// UnknownOrigin stands in for a request with no usable network address.
const UnknownOrigin = "0.0.0.0"

// UnknownUserAgent is hashed when the User-Agent header is missing.
const UnknownUserAgent = "unknown"

const (
	tagVoter  = "voter"
	tagOrigin = "origin"
	tagDevice = "device"
)

type Deriver struct {
	key []byte
}

// NewDeriver returns a Deriver keyed by salt. An empty salt is allowed and
// still yields deterministic identities.
func NewDeriver(salt string) *Deriver {
	var key []byte
	if salt != "" {
		sum := blake2b.Sum256([]byte(salt))
		key = sum[:]
	}
	return &Deriver{key: key}
}

// VoterID identifies one browser on one network origin.
func (d *Deriver) VoterID(origin, userAgent string) string {
	if userAgent == "" {
		userAgent = UnknownUserAgent
	}
	return d.digest(tagVoter, normalizeOrigin(origin), userAgent)
}

// OriginID identifies a network origin regardless of browser.
func (d *Deriver) OriginID(origin string) string {
	return d.digest(tagOrigin, normalizeOrigin(origin))
}

// DeviceFingerprint is recorded with each vote for later heuristics. It is
// never used to accept or reject a vote.
func (d *Deriver) DeviceFingerprint(userAgent, acceptLanguage string) string {
	if userAgent == "" {
		userAgent = UnknownUserAgent
	}
	return d.digest(tagDevice, userAgent, acceptLanguage)
}

func (d *Deriver) digest(parts ...string) string {
	h, err := blake2b.New256(d.key)
	if err != nil {
		// key is always nil or 32 bytes
		panic(err)
	}
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeOrigin(origin string) string {
	if origin == "" {
		return UnknownOrigin
	}
	return origin
}

// ResolveOrigin picks the client address from, in order, the first
// X-Forwarded-For entry, X-Real-IP, and the transport peer address. The
// first present source wins even when its value does not parse as an IP.
func ResolveOrigin(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if r.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		if host != "" {
			return host
		}
	}
	return UnknownOrigin
}

// Request bundles everything derived from one inbound request.
type Request struct {
	Origin            string
	VoterID           string
	OriginID          string
	DeviceFingerprint string
}

// Derive computes all identities for the given raw request metadata.
func (d *Deriver) Derive(origin, userAgent, acceptLanguage string) Request {
	origin = normalizeOrigin(origin)
	return Request{
		Origin:            origin,
		VoterID:           d.VoterID(origin, userAgent),
		OriginID:          d.OriginID(origin),
		DeviceFingerprint: d.DeviceFingerprint(userAgent, acceptLanguage),
	}
}
