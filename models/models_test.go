package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLinkIsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		expiresAt *time.Time
		expired   bool
	}{
		{"no expiry", nil, false},
		{"expires in the future", &future, false},
		{"expired in the past", &past, true},
		{"expires exactly now", &now, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := &Link{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.expired, link.IsExpired(now))
		})
	}
}

func TestLinkLimitReached(t *testing.T) {
	limit := int64(5)

	tests := []struct {
		name    string
		max     *int64
		current int64
		reached bool
	}{
		{"no limit", nil, 1000, false},
		{"under the limit", &limit, 4, false},
		{"at the limit", &limit, 5, true},
		{"over the limit", &limit, 6, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := &Link{MaxClicks: tt.max, CurrentClicks: tt.current}
			assert.Equal(t, tt.reached, link.LimitReached())
		})
	}
}

func TestLinkPasswordProtected(t *testing.T) {
	assert.False(t, (&Link{}).PasswordProtected())
	assert.True(t, (&Link{PasswordHash: "$2a$10$abc"}).PasswordProtected())
}

func TestUnknownLocation(t *testing.T) {
	loc := UnknownLocation()
	assert.Equal(t, "Unknown", loc.Country)
	assert.Equal(t, "Unknown", loc.Region)
	assert.Equal(t, "Unknown", loc.City)
	assert.Equal(t, "Unknown", loc.ISP)
}
