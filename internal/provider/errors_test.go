package provider

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", ErrRateLimit, true},
		{"provider down", ErrProviderDown, true},
		{"wrapped rate limit", fmt.Errorf("groq: HTTP 429: %w", ErrRateLimit), true},
		{"context length", ErrContextLength, false},
		{"authentication", ErrAuthentication, false},
		{"cooling down", ErrCoolingDown, false},
		{"no provider", ErrNoProvider, false},
		{"plain error", errors.New("bad request"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
