package cache

import (
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		fetchedAt time.Time
		ttl       time.Duration
		want      bool
	}{
		{
			name:      "expired entry",
			fetchedAt: now.Add(-1 * time.Hour),
			ttl:       5 * time.Minute,
			want:      true,
		},
		{
			name:      "valid entry",
			fetchedAt: now.Add(-1 * time.Minute),
			ttl:       5 * time.Minute,
			want:      false,
		},
		{
			name:      "exactly at ttl",
			fetchedAt: now.Add(-5 * time.Minute),
			ttl:       5 * time.Minute,
			want:      true,
		},
		{
			name:      "zero ttl never expires",
			fetchedAt: now.Add(-24 * time.Hour),
			ttl:       0,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{FetchedAt: tt.fetchedAt}
			if got := entry.IsExpired(now, tt.ttl); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		fetchedAt time.Time
		ttl       time.Duration
		want      time.Duration
	}{
		{
			name:      "four minutes remaining",
			fetchedAt: now.Add(-1 * time.Minute),
			ttl:       5 * time.Minute,
			want:      4 * time.Minute,
		},
		{
			name:      "already expired",
			fetchedAt: now.Add(-1 * time.Hour),
			ttl:       5 * time.Minute,
			want:      0,
		},
		{
			name:      "no ttl",
			fetchedAt: now,
			ttl:       0,
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{FetchedAt: tt.fetchedAt}
			if got := entry.TTL(now, tt.ttl); got != tt.want {
				t.Errorf("TTL() = %v, want %v", got, tt.want)
			}
		})
	}
}
