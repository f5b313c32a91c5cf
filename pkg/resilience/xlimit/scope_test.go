package xlimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeKey(t *testing.T) {
	assert.Equal(t, "api:user:42", ScopeKey("api", "42", "1.2.3.4"))
	assert.Equal(t, "api:ip:1.2.3.4", ScopeKey("api", "", "1.2.3.4"))
	assert.Equal(t, "auth:ip:unknown", ScopeKey("auth", "", ""))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
		withRA  string
	}{
		{
			name:    "cloudflare wins",
			headers: map[string]string{HeaderCFConnectingIP: "1.1.1.1", HeaderForwardedFor: "2.2.2.2", HeaderRealIP: "3.3.3.3"},
			want:    "1.1.1.1",
			withRA:  "1.1.1.1",
		},
		{
			name:    "first forwarded entry",
			headers: map[string]string{HeaderForwardedFor: " 2.2.2.2 , 10.0.0.1", HeaderRealIP: "3.3.3.3"},
			want:    "2.2.2.2",
			withRA:  "2.2.2.2",
		},
		{
			name:    "real ip",
			headers: map[string]string{HeaderRealIP: "3.3.3.3"},
			want:    "3.3.3.3",
			withRA:  "3.3.3.3",
		},
		{
			name:    "empty forwarded falls through",
			headers: map[string]string{HeaderForwardedFor: " ", HeaderRealIP: "3.3.3.3"},
			want:    "3.3.3.3",
			withRA:  "3.3.3.3",
		},
		{
			name:    "invalid cloudflare falls through",
			headers: map[string]string{HeaderCFConnectingIP: "not-an-ip", HeaderForwardedFor: "2.2.2.2"},
			want:    "2.2.2.2",
			withRA:  "2.2.2.2",
		},
		{
			name:    "invalid forwarded entry falls through",
			headers: map[string]string{HeaderForwardedFor: "attacker-chosen-bucket, 2.2.2.2", HeaderRealIP: "3.3.3.3"},
			want:    "3.3.3.3",
			withRA:  "3.3.3.3",
		},
		{
			name:    "oversized header ignored",
			headers: map[string]string{HeaderRealIP: strings.Repeat("1", 4096)},
			remote:  "192.0.2.1:4000",
			want:    UnknownIP,
			withRA:  "192.0.2.1",
		},
		{
			name:    "ipv6 normalized",
			headers: map[string]string{HeaderCFConnectingIP: "2001:DB8::0:1"},
			want:    "2001:db8::1",
			withRA:  "2001:db8::1",
		},
		{
			name:    "ipv4-mapped unmapped",
			headers: map[string]string{HeaderRealIP: "::ffff:198.51.100.4"},
			want:    "198.51.100.4",
			withRA:  "198.51.100.4",
		},
		{
			name:    "all headers invalid",
			headers: map[string]string{HeaderCFConnectingIP: "x", HeaderForwardedFor: "y", HeaderRealIP: "z"},
			want:    UnknownIP,
			withRA:  UnknownIP,
		},
		{
			name:   "no headers",
			remote: "192.0.2.1:4000",
			want:   UnknownIP,
			withRA: "192.0.2.1",
		},
		{
			name:   "garbage remote",
			remote: "pipe",
			want:   UnknownIP,
			withRA: UnknownIP,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r))
			assert.Equal(t, tt.withRA, ClientIPWithRemote(r))
		})
	}
}

func TestInternalContext(t *testing.T) {
	ctx := context.Background()
	assert.False(t, IsInternal(ctx))
	assert.True(t, IsInternal(WithInternal(ctx)))
}

func TestScopeOf(t *testing.T) {
	assert.Equal(t, "api", scopeOf("api:user:1"))
	assert.Equal(t, "plain", scopeOf("plain"))
	assert.Equal(t, ":x", scopeOf(":x"))
}
