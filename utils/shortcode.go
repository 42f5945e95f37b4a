package utils

import (
	"crypto/rand"
)

const (
	slugLength = 6
	charset    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateSlug generates a random 6-character alphanumeric slug.
func GenerateSlug() string {
	bytes := make([]byte, slugLength)
	rand.Read(bytes)

	slug := make([]byte, slugLength)
	for i := 0; i < slugLength; i++ {
		slug[i] = charset[bytes[i]%byte(len(charset))]
	}

	return string(slug)
}
