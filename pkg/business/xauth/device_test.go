package xauth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDevice(t *testing.T) {
	tests := []struct {
		ua   string
		want string
	}{
		{"", UnknownDevice},
		{"unknown", UnknownDevice},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15", "iPhone"},
		{"FinSight/1.0 (iPhone 15; iOS 17.0)", "iPhone 15"},
		{"Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X)", "iPad"},
		{"Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 Chrome/120.0 Mobile", "Pixel 7"},
		{"okhttp/4.0 Android", "Android Device"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36", "Windows Chrome"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36 Edg/120.0", "Windows Edge"},
		{"Mozilla/5.0 (Windows NT 10.0; rv:121.0) Gecko/20100101 Firefox/121.0", "Windows Firefox"},
		{"Mozilla/5.0 (Windows NT 10.0) curl", "Windows PC"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/537.36 Chrome/120.0 Safari/537.36", "Mac Chrome"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 Version/17.0 Safari/605.1.15", "Mac Safari"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) Firefox/121.0", "Mac Computer"},
		{"Mozilla/5.0 (X11; Linux x86_64) Firefox/121.0", "Linux Computer"},
		{"curl/8.4.0", UnknownDevice},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseDevice(tt.ua), tt.ua)
	}
}

func TestDeviceFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/auth/public/login", nil)
	info := DeviceFromRequest(r, "203.0.113.1")
	assert.Equal(t, DeviceInfo{IP: "203.0.113.1", UserAgent: "unknown", Device: UnknownDevice}, info)

	r.Header.Set("User-Agent", "Mozilla/5.0 (iPad; CPU OS 16_0)")
	assert.Equal(t, "iPad", DeviceFromRequest(r, "x").Device)
}
