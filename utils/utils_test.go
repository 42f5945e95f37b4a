package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateSlug(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		slug := GenerateSlug()
		assert.Len(t, slug, 6)
		for _, c := range slug {
			assert.True(t, strings.ContainsRune(charset, c), "unexpected character %q", c)
		}
		seen[slug] = true
	}
	// 100 draws out of 62^6 should not all collide.
	assert.Greater(t, len(seen), 90)
}

func TestIsValidURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"https://example.com", true},
		{"http://example.com/path?q=1", true},
		{"https://sub.example.com:8443/x", true},
		{"ftp://example.com", false},
		{"example.com", false},
		{"//example.com", false},
		{"https://", false},
		{"", false},
		{"javascript:alert(1)", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidURL(tt.url))
		})
	}
}

func TestIsValidSlug(t *testing.T) {
	tests := []struct {
		slug  string
		valid bool
	}{
		{"abc123", true},
		{"my-link_2", true},
		{"A", true},
		{strings.Repeat("a", 64), true},
		{strings.Repeat("a", 65), false},
		{"", false},
		{"has space", false},
		{"slash/name", false},
		{"dots.break", false},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidSlug(tt.slug))
		})
	}
}
