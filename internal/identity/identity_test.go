package identity

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoterIDDeterministic(t *testing.T) {
	d := NewDeriver("salt")

	a := d.VoterID("203.0.113.7", "Mozilla/5.0")
	b := d.VoterID("203.0.113.7", "Mozilla/5.0")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, d.VoterID("203.0.113.8", "Mozilla/5.0"))
	assert.NotEqual(t, a, d.VoterID("203.0.113.7", "curl/8.0"))
	assert.NotEqual(t, a, NewDeriver("other").VoterID("203.0.113.7", "Mozilla/5.0"))
}

func TestVoterIDNoCollisions(t *testing.T) {
	d := NewDeriver("")
	seen := make(map[string]string, 20000)

	for i := 0; i < 10000; i++ {
		origin := fmt.Sprintf("10.%d.%d.%d", i/65536, (i/256)%256, i%256)
		for _, ua := range []string{"ua-a", "ua-b"} {
			id := d.VoterID(origin, ua)
			key := origin + "|" + ua
			if prev, ok := seen[id]; ok {
				t.Fatalf("collision between %s and %s", prev, key)
			}
			seen[id] = key
		}
	}
	assert.Len(t, seen, 20000)
}

func TestFieldBoundariesDoNotCollide(t *testing.T) {
	d := NewDeriver("")
	assert.NotEqual(t, d.VoterID("1.2.3.4-a", "b"), d.VoterID("1.2.3.4", "a-b"))
	assert.NotEqual(t, d.OriginID("1.2.3.4"), d.VoterID("1.2.3.4", ""))
}

func TestEmptyInputsHashToSentinels(t *testing.T) {
	d := NewDeriver("")
	assert.Equal(t, d.VoterID(UnknownOrigin, UnknownUserAgent), d.VoterID("", ""))
	assert.Equal(t, d.OriginID(UnknownOrigin), d.OriginID(""))
	assert.Equal(t, d.DeviceFingerprint("", ""), d.DeviceFingerprint(UnknownUserAgent, ""))
}

func TestDeriveBundle(t *testing.T) {
	d := NewDeriver("salt")
	req := d.Derive("198.51.100.1", "Mozilla/5.0", "en-US")

	assert.Equal(t, "198.51.100.1", req.Origin)
	assert.Equal(t, d.VoterID("198.51.100.1", "Mozilla/5.0"), req.VoterID)
	assert.Equal(t, d.OriginID("198.51.100.1"), req.OriginID)
	assert.Equal(t, d.DeviceFingerprint("Mozilla/5.0", "en-US"), req.DeviceFingerprint)
}

func TestResolveOrigin(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		want       string
	}{
		{name: "forwarded first entry", xff: " 203.0.113.1 , 10.0.0.1", realIP: "198.51.100.9", remoteAddr: "127.0.0.1:1234", want: "203.0.113.1"},
		{name: "malformed forwarded still wins", xff: "not-an-ip", realIP: "198.51.100.9", remoteAddr: "127.0.0.1:1234", want: "not-an-ip"},
		{name: "empty first forwarded entry falls through", xff: " , 10.0.0.1", realIP: "198.51.100.9", want: "198.51.100.9"},
		{name: "real ip", realIP: "198.51.100.9", remoteAddr: "127.0.0.1:1234", want: "198.51.100.9"},
		{name: "peer address without port", remoteAddr: "127.0.0.1:1234", want: "127.0.0.1"},
		{name: "ipv6 peer", remoteAddr: "[::1]:80", want: "::1"},
		{name: "peer without port", remoteAddr: "192.0.2.4", want: "192.0.2.4"},
		{name: "nothing", want: UnknownOrigin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			require.Equal(t, tt.want, ResolveOrigin(r))
		})
	}
}
