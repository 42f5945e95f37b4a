package utils

import (
	"net/url"
	"regexp"
)

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// IsValidURL reports whether urlStr parses as an absolute http(s) URL.
func IsValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsValidSlug reports whether a custom slug is safe to use in a path segment.
func IsValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}
