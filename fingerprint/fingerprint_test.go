package fingerprint

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "x-forwarded-for single",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			remoteAddr: "10.0.0.1:4444",
			want:       "203.0.113.7",
		},
		{
			name:       "x-forwarded-for chain takes first hop",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 70.41.3.18, 150.172.238.178"},
			remoteAddr: "10.0.0.1:4444",
			want:       "203.0.113.7",
		},
		{
			name: "x-forwarded-for wins over x-real-ip",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.7",
				"X-Real-Ip":       "198.51.100.2",
			},
			remoteAddr: "10.0.0.1:4444",
			want:       "203.0.113.7",
		},
		{
			name:       "x-real-ip",
			headers:    map[string]string{"X-Real-Ip": "198.51.100.2"},
			remoteAddr: "10.0.0.1:4444",
			want:       "198.51.100.2",
		},
		{
			name:       "cloudflare header",
			headers:    map[string]string{"Cf-Connecting-Ip": "198.51.100.9"},
			remoteAddr: "10.0.0.1:4444",
			want:       "198.51.100.9",
		},
		{
			name:       "remote addr with port",
			headers:    nil,
			remoteAddr: "192.0.2.44:5656",
			want:       "192.0.2.44",
		},
		{
			name:       "remote addr without port",
			headers:    nil,
			remoteAddr: "192.0.2.44",
			want:       "192.0.2.44",
		},
		{
			name:       "ipv6 remote addr",
			headers:    nil,
			remoteAddr: "[2001:db8::1]:8080",
			want:       "2001:db8::1",
		},
		{
			name:       "everything empty",
			headers:    nil,
			remoteAddr: "",
			want:       "127.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			assert.Equal(t, tt.want, ExtractClientIP(h, tt.remoteAddr))
		})
	}
}

func TestHash(t *testing.T) {
	a := Hash("203.0.113.7", "Mozilla/5.0")
	b := Hash("203.0.113.7", "Mozilla/5.0")
	c := Hash("203.0.113.8", "Mozilla/5.0")

	assert.Len(t, a, hashLength)
	assert.Equal(t, a, b, "same inputs must hash identically")
	assert.NotEqual(t, a, c, "different IPs should not collide")
	assert.NotEqual(t, a, Hash("203.0.113.7", "curl/8.0"))
}

func TestParseDefaults(t *testing.T) {
	facets := Parse("")
	assert.Equal(t, "Unknown", facets.BrowserName)
	assert.Equal(t, "Unknown", facets.OSName)
	assert.Equal(t, "desktop", facets.DeviceType)
}

func TestParseDesktopChrome(t *testing.T) {
	ua := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	facets := Parse(ua)

	assert.Equal(t, "Chrome", facets.BrowserName)
	assert.Equal(t, "120", facets.BrowserMajor)
	assert.Equal(t, "Windows", facets.OSName)
	assert.Equal(t, "desktop", facets.DeviceType)
}

func TestParseMobile(t *testing.T) {
	ua := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	facets := Parse(ua)

	assert.Equal(t, "mobile", facets.DeviceType)
	assert.Equal(t, "iOS", facets.OSName)
}

func TestParseBot(t *testing.T) {
	ua := "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	facets := Parse(ua)

	assert.Equal(t, "bot", facets.DeviceType)
	assert.Equal(t, "bot", facets.BrowserType)
}
