package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveNamespace(t *testing.T) {
	tests := []struct {
		name          string
		userID        uint
		authenticated bool
		guestToken    string
		want          string
		wantErr       error
	}{
		{
			name:          "authenticated user",
			userID:        42,
			authenticated: true,
			want:          "user_42",
		},
		{
			name:          "authenticated wins over guest session",
			userID:        7,
			authenticated: true,
			guestToken:    "abc123",
			want:          "user_7",
		},
		{
			name:       "guest session only",
			guestToken: "abc123",
			want:       "session_abc123",
		},
		{
			name:    "no identity",
			wantErr: ErrMissingIdentity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveNamespace(tt.userID, tt.authenticated, tt.guestToken)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
