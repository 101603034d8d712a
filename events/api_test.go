//go:build !integration

package events_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goquerycache "github.com/dgduncan/go-query-cache"
	"github.com/dgduncan/go-query-cache/events"
	"github.com/dgduncan/go-query-cache/tokens"
)

// fakeAPI is a small in-memory version of the events backend.
type fakeAPI struct {
	mu     sync.Mutex
	hits   map[string]int
	auth   map[string]string
	joined map[int]bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{hits: make(map[string]int), auth: make(map[string]string), joined: make(map[int]bool)}
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	record := func(name string, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.hits[name]++
		f.auth[name] = r.Header.Get("Authorization")
	}
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		record("login", r)
		var req events.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]string{"message": "Invalid credentials"})
			return
		}
		writeJSON(w, events.LoginResponse{AccessToken: "access-1", RefreshToken: "refresh-1"})
	})
	mux.HandleFunc("POST /api/refresh", func(w http.ResponseWriter, r *http.Request) {
		record("refresh", r)
		var body struct {
			Token string `json:"token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Token != "refresh-1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		writeJSON(w, events.RefreshResponse{AccessToken: "access-2"})
	})
	mux.HandleFunc("GET /api/events", func(w http.ResponseWriter, r *http.Request) {
		record("events", r)
		f.mu.Lock()
		joined := f.joined[7]
		f.mu.Unlock()

		list := []map[string]any{{"id": 7, "name": "Jazz", "joined": joined}}
		if r.URL.Query().Get("categoryId") == "2" {
			list = []map[string]any{}
		}
		writeJSON(w, list)
	})
	mux.HandleFunc("POST /api/events/{id}/join", func(w http.ResponseWriter, r *http.Request) {
		record("join", r)
		if r.PathValue("id") != "7" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.mu.Lock()
		f.joined[7] = true
		f.mu.Unlock()
		writeJSON(w, events.MessageResponse{Message: "Joined"})
	})
	mux.HandleFunc("GET /api/profile", func(w http.ResponseWriter, r *http.Request) {
		record("profile", r)
		writeJSON(w, events.Profile{ID: 4, FirstName: "Ann", IsAdmin: true})
	})
	mux.HandleFunc("DELETE /api/profile", func(w http.ResponseWriter, r *http.Request) {
		record("deleteAccount", r)
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[name]
}

func (f *fakeAPI) lastAuth(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth[name]
}

func newTestAPI(t *testing.T) (*events.API, *fakeAPI, *tokens.Session) {
	t.Helper()

	backend := newFakeAPI()
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	session := tokens.NewSession()

	httpClient := &http.Client{Transport: goquerycache.NewAuthTransport(session)(server.Client().Transport)}
	exec, err := goquerycache.NewHTTPExecutor(httpClient, server.URL+"/api/", logger)
	require.NoError(t, err)

	reg := goquerycache.NewRegistry()
	require.NoError(t, events.Define(reg, nil))

	client := goquerycache.New(exec, reg, &goquerycache.Config{EvictionGrace: time.Minute}, nil, logger)
	return events.NewAPI(client, session), backend, session
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLoginSetsSession(t *testing.T) {
	t.Parallel()

	api, backend, session := newTestAPI(t)
	ctx := testContext(t)

	_, err := api.Login(ctx, events.LoginRequest{FirstName: "Ann", LastName: "Lee", Password: "wrong"})
	var reqErr *goquerycache.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnauthorized, reqErr.StatusCode)
	assert.JSONEq(t, `{"message":"Invalid credentials"}`, string(reqErr.Body))
	assert.False(t, session.SignedIn())

	resp, err := api.Login(ctx, events.LoginRequest{FirstName: "Ann", LastName: "Lee", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "access-1", resp.AccessToken)
	assert.Equal(t, "refresh-1", session.Credentials().RefreshToken)
	assert.Empty(t, backend.lastAuth("login"))

	sub, err := api.Profile(ctx)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	p, err := sub.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ann", p.FirstName)
	assert.Equal(t, "Bearer access-1", backend.lastAuth("profile"))

	api.SyncSession(p)
	assert.Equal(t, "4", session.Credentials().UserID)
	assert.True(t, session.Credentials().IsAdmin)
}

func TestJoinEventRefetchesEvents(t *testing.T) {
	t.Parallel()

	api, backend, _ := newTestAPI(t)
	ctx := testContext(t)

	list, err := api.Events(ctx, events.Filter{})
	require.NoError(t, err)
	defer list.Unsubscribe()

	profile, err := api.Profile(ctx)
	require.NoError(t, err)
	defer profile.Unsubscribe()

	got, err := list.Await(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	_, err = profile.Await(ctx)
	require.NoError(t, err)

	msg, err := api.JoinEvent(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Joined", msg.Message)

	snap, err := list.Wait(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":7,"name":"Jazz","joined":true}]`, string(snap.Data))

	assert.Equal(t, 2, backend.count("events"))
	assert.Equal(t, 1, backend.count("profile"))

	_, err = api.JoinEvent(ctx, 8)
	var reqErr *goquerycache.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusNotFound, reqErr.StatusCode)
	assert.Equal(t, events.JoinEvent, reqErr.Endpoint)
	assert.Equal(t, 2, backend.count("events"))
}

func TestEventsFilterIsPartOfKey(t *testing.T) {
	t.Parallel()

	api, backend, _ := newTestAPI(t)
	ctx := testContext(t)

	all, err := api.Events(ctx, events.Filter{})
	require.NoError(t, err)
	defer all.Unsubscribe()

	music, err := api.Events(ctx, events.Filter{CategoryID: 2})
	require.NoError(t, err)
	defer music.Unsubscribe()

	again, err := api.Events(ctx, events.Filter{CategoryID: 2})
	require.NoError(t, err)
	defer again.Unsubscribe()

	assert.NotEqual(t, all.Key(), music.Key())
	assert.Equal(t, music.Key(), again.Key())

	got, err := music.Await(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = all.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.count("events"))
}

func TestEventsWithoutFilterShareEntry(t *testing.T) {
	t.Parallel()

	api, backend, _ := newTestAPI(t)
	ctx := testContext(t)

	raw, err := api.Client().Query(ctx, events.GetEvents, nil)
	require.NoError(t, err)
	defer raw.Unsubscribe()

	typed, err := api.Events(ctx, events.Filter{})
	require.NoError(t, err)
	defer typed.Unsubscribe()

	assert.Equal(t, raw.Key(), typed.Key())

	_, err = raw.Wait(ctx)
	require.NoError(t, err)
	_, err = typed.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.count("events"))
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	api, _, session := newTestAPI(t)
	ctx := testContext(t)

	_, err := api.Refresh(ctx)
	assert.ErrorIs(t, err, events.ErrSignedOut)

	_, err = api.Login(ctx, events.LoginRequest{Password: "secret"})
	require.NoError(t, err)

	token, err := api.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)
	assert.Equal(t, "access-2", session.AccessToken())
	assert.Equal(t, "refresh-1", session.Credentials().RefreshToken)
}

func TestDeleteAccountSignsOut(t *testing.T) {
	t.Parallel()

	api, backend, session := newTestAPI(t)
	ctx := testContext(t)

	_, err := api.Login(ctx, events.LoginRequest{Password: "secret"})
	require.NoError(t, err)

	require.NoError(t, api.DeleteAccount(ctx))
	assert.False(t, session.SignedIn())
	assert.Equal(t, "Bearer access-1", backend.lastAuth("deleteAccount"))
}
