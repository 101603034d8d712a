//go:build !integration

package local

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgduncan/go-query-cache/tokens"
)

func TestBasicStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		setup     func(*BasicStore)
		key       string
		wantValue string
		wantErr   error
	}{
		{
			name:    "missing key",
			key:     tokens.KeyAccessToken,
			wantErr: tokens.ErrNoToken,
		},
		{
			name: "stored key",
			setup: func(bs *BasicStore) {
				_ = bs.Set(context.Background(), tokens.KeyAccessToken, "abc")
			},
			key:       tokens.KeyAccessToken,
			wantValue: "abc",
		},
		{
			name: "overwritten key",
			setup: func(bs *BasicStore) {
				_ = bs.Set(context.Background(), tokens.KeyAccessToken, "abc")
				_ = bs.Set(context.Background(), tokens.KeyAccessToken, "def")
			},
			key:       tokens.KeyAccessToken,
			wantValue: "def",
		},
		{
			name: "deleted key",
			setup: func(bs *BasicStore) {
				_ = bs.Set(context.Background(), tokens.KeyAccessToken, "abc")
				_ = bs.Delete(context.Background(), tokens.KeyAccessToken)
			},
			key:     tokens.KeyAccessToken,
			wantErr: tokens.ErrNoToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bs := NewBasicStore()
			if tt.setup != nil {
				tt.setup(bs)
			}

			got, err := bs.Get(context.Background(), tt.key)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, got)
		})
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewBasicStore()

	s := tokens.NewSession()
	s.SetCredentials(tokens.Credentials{AccessToken: "access", RefreshToken: "refresh"})
	require.NoError(t, s.Save(ctx, store))

	restored := tokens.NewSession()
	ok, err := restored.Load(ctx, store)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "access", restored.AccessToken())
	assert.Equal(t, "refresh", restored.Credentials().RefreshToken)

	require.NoError(t, restored.Clear(ctx, store))
	assert.False(t, restored.SignedIn())
	assert.Equal(t, 0, store.Len())
}

func TestSessionLoadRequiresBothTokens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewBasicStore()
	require.NoError(t, store.Set(ctx, tokens.KeyAccessToken, "access"))

	s := tokens.NewSession()
	ok, err := s.Load(ctx, store)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.SignedIn())
}
