package server

import (
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestOriginPolicy(t *testing.T) {
	policy := newOriginPolicy([]string{"http://example.com", "https://chat.example.com:8443", "not a url"}, zerolog.Nop())

	tests := []struct {
		origin string
		want   bool
	}{
		{origin: "http://example.com", want: true},
		{origin: "HTTP://EXAMPLE.COM", want: true},
		{origin: "https://chat.example.com:8443", want: true},
		{origin: "https://chat.example.com", want: false},
		{origin: "http://evil.com", want: false},
		{origin: "", want: false},
		{origin: "not-a-url", want: false},
		{origin: "javascript:alert(1)", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			require.Equal(t, tt.want, policy.check(r))
		})
	}
}

func TestOriginPolicy_Wildcard(t *testing.T) {
	policy := newOriginPolicy([]string{"*"}, zerolog.Nop())

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://anything.example")
	require.True(t, policy.allows(r))

	// A wildcard still requires a well-formed Origin header.
	r.Header.Del("Origin")
	require.False(t, policy.allows(r))
}
