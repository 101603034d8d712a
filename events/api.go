package events

import (
	"context"
	"errors"
	"strconv"

	goquerycache "github.com/dgduncan/go-query-cache"
	"github.com/dgduncan/go-query-cache/tokens"
)

// ErrSignedOut is returned by calls that need a session with tokens.
var ErrSignedOut = errors.New("no active session")

// API is a typed facade over a client whose registry holds this package's
// endpoints. Queries return subscriptions the caller must Unsubscribe.
type API struct {
	client  *goquerycache.Client
	session *tokens.Session
}

// NewAPI wraps client. session may be nil; when set, Login and Refresh
// record the returned tokens in it.
func NewAPI(client *goquerycache.Client, session *tokens.Session) *API {
	return &API{client: client, session: session}
}

func (a *API) Client() *goquerycache.Client { return a.client }

func query[T any](ctx context.Context, a *API, name string, args any) (*goquerycache.TypedSubscription[T], error) {
	sub, err := a.client.Query(ctx, name, args)
	if err != nil {
		return nil, err
	}
	return goquerycache.Typed[T](sub), nil
}

func mutate[T any](ctx context.Context, a *API, name string, args any) (T, error) {
	var zero T

	m, err := a.client.Mutation(name)
	if err != nil {
		return zero, err
	}

	data, err := m.Trigger(ctx, args)
	if err != nil {
		return zero, err
	}

	return goquerycache.Decode[T](goquerycache.Snapshot{Key: goquerycache.Key(name), Data: data})
}

func (a *API) Events(ctx context.Context, f Filter) (*goquerycache.TypedSubscription[[]Event], error) {
	return query[[]Event](ctx, a, GetEvents, f)
}

func (a *API) Categories(ctx context.Context) (*goquerycache.TypedSubscription[[]Category], error) {
	return query[[]Category](ctx, a, GetCategories, nil)
}

func (a *API) Profile(ctx context.Context) (*goquerycache.TypedSubscription[Profile], error) {
	return query[Profile](ctx, a, GetProfile, nil)
}

// UserEvents lists the events the signed-in user has joined.
func (a *API) UserEvents(ctx context.Context) (*goquerycache.TypedSubscription[[]Event], error) {
	return query[[]Event](ctx, a, GetUserEvents, nil)
}

// MyEvents lists the events the signed-in user organises.
func (a *API) MyEvents(ctx context.Context) (*goquerycache.TypedSubscription[[]Event], error) {
	return query[[]Event](ctx, a, GetMyEvents, nil)
}

func (a *API) Users(ctx context.Context) (*goquerycache.TypedSubscription[[]User], error) {
	return query[[]User](ctx, a, GetUsers, nil)
}

// Login signs in and stores the returned tokens in the session.
func (a *API) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	resp, err := mutate[LoginResponse](ctx, a, Login, req)
	if err != nil {
		return resp, err
	}
	if a.session != nil {
		a.session.SetCredentials(tokens.Credentials{
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
		})
	}
	return resp, nil
}

func (a *API) Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error) {
	return mutate[RegisterResponse](ctx, a, Register, req)
}

// Refresh exchanges the session's refresh token for a new access token.
func (a *API) Refresh(ctx context.Context) (string, error) {
	if a.session == nil || a.session.Credentials().RefreshToken == "" {
		return "", ErrSignedOut
	}

	resp, err := mutate[RefreshResponse](ctx, a, Refresh, a.session.Credentials().RefreshToken)
	if err != nil {
		return "", err
	}
	a.session.SetCredentials(tokens.Credentials{AccessToken: resp.AccessToken})
	return resp.AccessToken, nil
}

func (a *API) CreateEvent(ctx context.Context, in EventInput) (CreateEventResponse, error) {
	return mutate[CreateEventResponse](ctx, a, CreateEvent, in)
}

func (a *API) UpdateEvent(ctx context.Context, id int, in EventInput) error {
	_, err := mutate[any](ctx, a, UpdateEvent, UpdateEventArgs{ID: id, Data: in})
	return err
}

func (a *API) DeleteEvent(ctx context.Context, id int) error {
	_, err := mutate[any](ctx, a, DeleteEvent, id)
	return err
}

func (a *API) JoinEvent(ctx context.Context, id int) (MessageResponse, error) {
	return mutate[MessageResponse](ctx, a, JoinEvent, id)
}

func (a *API) LeaveEvent(ctx context.Context, id int) error {
	_, err := mutate[any](ctx, a, LeaveEvent, id)
	return err
}

func (a *API) UpdateProfile(ctx context.Context, in ProfileInput) (Profile, error) {
	return mutate[Profile](ctx, a, UpdateProfile, in)
}

// DeleteAccount deletes the signed-in account and signs the session out.
func (a *API) DeleteAccount(ctx context.Context) error {
	if _, err := mutate[any](ctx, a, DeleteAccount, nil); err != nil {
		return err
	}
	if a.session != nil {
		a.session.Logout()
	}
	return nil
}

func (a *API) ToggleUserBlock(ctx context.Context, userID int, blocked bool) error {
	_, err := mutate[any](ctx, a, ToggleUserBlock, ToggleBlockArgs{UserID: userID, Blocked: blocked})
	return err
}

// SyncSession copies identity and role from a fetched profile into the
// session, and adopts tokens the profile endpoint hands out.
func (a *API) SyncSession(p Profile) {
	if a.session == nil {
		return
	}
	if p.AccessToken != "" {
		a.session.SetCredentials(tokens.Credentials{
			AccessToken:  p.AccessToken,
			RefreshToken: p.RefreshToken,
		})
	}
	a.session.SetUser(strconv.Itoa(p.ID), p.IsAdmin)
}
