package tokens

import (
	"context"
	"errors"
	"sync"
)

// Credentials is the signed-in state of the app.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	Email        string
	Name         string
	IsAdmin      bool
}

// Session holds the current credentials in memory. It is safe for
// concurrent use and serves as the bearer token source of the HTTP
// transport.
type Session struct {
	mu    sync.RWMutex
	creds Credentials
}

func NewSession() *Session {
	return &Session{}
}

// AccessToken returns the current access token, or "" when signed out.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.AccessToken
}

func (s *Session) Credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

func (s *Session) SignedIn() bool {
	return s.AccessToken() != ""
}

// SetCredentials always replaces the access token. The remaining fields
// only overwrite the current ones when they are set, so a token refresh
// keeps the refresh token and identity already known.
func (s *Session) SetCredentials(c Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds.AccessToken = c.AccessToken
	if c.RefreshToken != "" {
		s.creds.RefreshToken = c.RefreshToken
	}
	if c.UserID != "" {
		s.creds.UserID = c.UserID
	}
	if c.Email != "" {
		s.creds.Email = c.Email
	}
	if c.Name != "" {
		s.creds.Name = c.Name
	}
	if c.IsAdmin {
		s.creds.IsAdmin = true
	}
}

// SetUser records identity and role, as reported by the profile endpoint.
func (s *Session) SetUser(userID string, isAdmin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds.UserID = userID
	s.creds.IsAdmin = isAdmin
}

func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds = Credentials{}
}

// Load restores tokens from store. Nothing is restored unless both the
// access and the refresh token are present; the returned bool reports
// whether a session was restored.
func (s *Session) Load(ctx context.Context, store Store) (bool, error) {
	access, err := store.Get(ctx, KeyAccessToken)
	if errors.Is(err, ErrNoToken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	refresh, err := store.Get(ctx, KeyRefreshToken)
	if errors.Is(err, ErrNoToken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if access == "" || refresh == "" {
		return false, nil
	}

	s.SetCredentials(Credentials{AccessToken: access, RefreshToken: refresh})
	return true, nil
}

// Save persists the current tokens to store.
func (s *Session) Save(ctx context.Context, store Store) error {
	c := s.Credentials()
	return errors.Join(
		store.Set(ctx, KeyAccessToken, c.AccessToken),
		store.Set(ctx, KeyRefreshToken, c.RefreshToken),
	)
}

// Clear signs out and removes the persisted tokens.
func (s *Session) Clear(ctx context.Context, store Store) error {
	s.Logout()
	return errors.Join(
		store.Delete(ctx, KeyAccessToken),
		store.Delete(ctx, KeyRefreshToken),
	)
}
