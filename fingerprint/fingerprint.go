// Package fingerprint derives a visitor identity token and parsed client
// facets from request headers. The fingerprint is not a stable cross-session
// identity; it only approximates unique visitors and collides for any two
// visits sharing IP and user agent.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"github.com/mileusna/useragent"

	"shortlink-service/models"
)

// hashLength is the number of hex characters kept from the digest.
const hashLength = 16

// headerPriority lists client-IP headers in order of preference.
// Comma-separated headers contribute their first entry.
var headerPriority = []string{
	"X-Forwarded-For",
	"X-Real-Ip",
	"Cf-Connecting-Ip",
	"True-Client-Ip",
	"X-Client-Ip",
	"X-Forwarded",
	"Forwarded-For",
	"Forwarded",
	"Client-Ip",
}

// ExtractClientIP returns the client IP for a request given its headers and
// remote address. It never returns an empty string; unresolvable input
// falls back to 127.0.0.1.
func ExtractClientIP(h http.Header, remoteAddr string) string {
	for _, name := range headerPriority {
		value := h.Get(name)
		if value == "" {
			continue
		}
		// Proxy-chain headers may carry multiple addresses.
		if ip := strings.TrimSpace(strings.Split(value, ",")[0]); ip != "" {
			return ip
		}
	}

	if remoteAddr != "" {
		if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
			return host
		}
		return remoteAddr
	}
	return "127.0.0.1"
}

// Hash returns the visitor fingerprint for an IP and raw user agent:
// a truncated hex SHA-256 digest of their concatenation.
func Hash(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + userAgent))
	return hex.EncodeToString(sum[:])[:hashLength]
}

// Parse extracts browser, OS and device facets from a raw user agent string.
// Parsing is best effort; missing information yields "Unknown" or empty
// defaults rather than an error.
func Parse(rawUA string) models.Facets {
	facets := models.Facets{
		BrowserName: "Unknown",
		OSName:      "Unknown",
		DeviceType:  "desktop",
	}
	if rawUA == "" {
		return facets
	}

	ua := useragent.Parse(rawUA)

	if ua.Name != "" {
		facets.BrowserName = ua.Name
	}
	facets.BrowserVersion = ua.Version
	facets.BrowserMajor = majorVersion(ua.Version)

	if ua.OS != "" {
		facets.OSName = ua.OS
	}
	facets.OSVersion = ua.OSVersion
	facets.DeviceModel = ua.Device

	switch {
	case ua.Bot:
		facets.BrowserType = "bot"
		facets.DeviceType = "bot"
	case ua.Mobile:
		facets.DeviceType = "mobile"
	case ua.Tablet:
		facets.DeviceType = "tablet"
	}

	return facets
}

func majorVersion(version string) string {
	if version == "" {
		return ""
	}
	return strings.Split(version, ".")[0]
}
