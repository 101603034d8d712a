package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	goquerycache "github.com/dgduncan/go-query-cache"
)

// Query endpoints.
const (
	GetEvents     = "getEvents"
	GetCategories = "getCategories"
	GetProfile    = "getProfile"
	GetUserEvents = "getUserEvents"
	GetMyEvents   = "getMyEvents"
	GetUsers      = "getUsers"
)

// Mutation endpoints.
const (
	Login           = "login"
	Register        = "register"
	Refresh         = "refresh"
	CreateEvent     = "createEvent"
	UpdateEvent     = "updateEvent"
	DeleteEvent     = "deleteEvent"
	JoinEvent       = "joinEvent"
	LeaveEvent      = "leaveEvent"
	UpdateProfile   = "updateProfile"
	DeleteAccount   = "deleteAccount"
	ToggleUserBlock = "toggleUserBlock"
)

var queries = []goquerycache.Endpoint{
	{Name: GetEvents, Build: buildGetEvents, ProvidesTags: entityTags(TagEvent), DefaultArgs: Filter{}},
	{Name: GetCategories, Build: get("categories"), ProvidesTags: entityTags(TagCategory)},
	{Name: GetProfile, Build: get("profile"), ProvidesTags: goquerycache.StaticTags(goquerycache.ListTag(TagProfile))},
	{Name: GetUserEvents, Build: get("events/user"), ProvidesTags: entityTags(TagUserEvents)},
	{Name: GetMyEvents, Build: get("events/my"), ProvidesTags: entityTags(TagEvent)},
	{Name: GetUsers, Build: get("profile/users"), ProvidesTags: entityTags(TagUser)},
}

var mutations = []goquerycache.Endpoint{
	{Name: Login, Build: withBody[LoginRequest](http.MethodPost, "login")},
	{Name: Register, Build: withBody[RegisterRequest](http.MethodPost, "register")},
	{Name: Refresh, Build: buildRefresh},
	{Name: CreateEvent, Build: withBody[EventInput](http.MethodPost, "events")},
	{Name: UpdateEvent, Build: buildUpdateEvent},
	{Name: DeleteEvent, Build: onEvent(http.MethodDelete, "")},
	{Name: JoinEvent, Build: onEvent(http.MethodPost, "join")},
	{Name: LeaveEvent, Build: onEvent(http.MethodDelete, "leave")},
	{Name: UpdateProfile, Build: withBody[ProfileInput](http.MethodPut, "profile")},
	{Name: DeleteAccount, Build: func(any) (goquerycache.Request, error) {
		return goquerycache.Request{Method: http.MethodDelete, Path: "profile"}, nil
	}},
	{Name: ToggleUserBlock, Build: buildToggleUserBlock},
}

// Define registers the whole API with reg. Mutations invalidate what graph
// lists for them; a nil graph means DefaultTagGraph. The graph must not name
// endpoints that are not mutations of this API.
func Define(reg *goquerycache.Registry, graph *TagGraph) error {
	if graph == nil {
		graph = DefaultTagGraph()
	}

	known := make(map[string]bool, len(mutations))
	for _, m := range mutations {
		known[m.Name] = true
	}
	for _, name := range graph.Mutations() {
		if !known[name] {
			return fmt.Errorf("tag graph names unknown mutation %q", name)
		}
	}

	for _, q := range queries {
		q.Kind = goquerycache.KindQuery
		if _, err := reg.Define(q); err != nil {
			return err
		}
	}
	for _, m := range mutations {
		m.Kind = goquerycache.KindMutation
		m.InvalidatesTags = graph.invalidates(m.Name)
		if _, err := reg.Define(m); err != nil {
			return err
		}
	}
	return nil
}

// argsAs accepts T or *T.
func argsAs[T any](args any) (T, error) {
	switch v := args.(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("want %T, got %T", zero, args)
}

func get(path string) goquerycache.RequestBuilder {
	return func(any) (goquerycache.Request, error) {
		return goquerycache.Request{Method: http.MethodGet, Path: path}, nil
	}
}

func withBody[T any](method, path string) goquerycache.RequestBuilder {
	return func(args any) (goquerycache.Request, error) {
		body, err := argsAs[T](args)
		if err != nil {
			return goquerycache.Request{}, err
		}
		return goquerycache.Request{Method: method, Path: path, Body: body}, nil
	}
}

// onEvent builds events/{id}[/action] requests from an event id.
func onEvent(method, action string) goquerycache.RequestBuilder {
	return func(args any) (goquerycache.Request, error) {
		id, err := argsAs[int](args)
		if err != nil {
			return goquerycache.Request{}, err
		}
		path := "events/" + strconv.Itoa(id)
		if action != "" {
			path += "/" + action
		}
		return goquerycache.Request{Method: method, Path: path}, nil
	}
}

func buildGetEvents(args any) (goquerycache.Request, error) {
	var f Filter
	if args != nil {
		var err error
		if f, err = argsAs[Filter](args); err != nil {
			return goquerycache.Request{}, err
		}
	}

	q := url.Values{}
	if f.CategoryID > 0 {
		q.Set("categoryId", strconv.Itoa(f.CategoryID))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q.Set("search", s)
	}
	if f.Radius != 0 && f.UserLat != nil && f.UserLng != nil {
		q.Set("radius", formatFloat(f.Radius))
		q.Set("userLat", formatFloat(*f.UserLat))
		q.Set("userLng", formatFloat(*f.UserLng))
	}

	return goquerycache.Request{Method: http.MethodGet, Path: "events", Query: q}, nil
}

func buildRefresh(args any) (goquerycache.Request, error) {
	token, err := argsAs[string](args)
	if err != nil {
		return goquerycache.Request{}, err
	}
	return goquerycache.Request{
		Method: http.MethodPost,
		Path:   "refresh",
		Body:   map[string]string{"token": token},
	}, nil
}

func buildUpdateEvent(args any) (goquerycache.Request, error) {
	a, err := argsAs[UpdateEventArgs](args)
	if err != nil {
		return goquerycache.Request{}, err
	}
	return goquerycache.Request{
		Method: http.MethodPut,
		Path:   "events/" + strconv.Itoa(a.ID),
		Body:   a.Data,
	}, nil
}

func buildToggleUserBlock(args any) (goquerycache.Request, error) {
	a, err := argsAs[ToggleBlockArgs](args)
	if err != nil {
		return goquerycache.Request{}, err
	}
	return goquerycache.Request{
		Method: http.MethodPost,
		Path:   "profile/users/" + strconv.Itoa(a.UserID) + "/block",
		Body:   map[string]bool{"blocked": a.Blocked},
	}, nil
}

// entityTags provides one tag per returned entity plus the LIST tag. A
// result that is not a list of objects with ids provides the LIST tag only.
func entityTags(typ string) goquerycache.TagsFunc {
	return func(result json.RawMessage, _ any) []goquerycache.Tag {
		tags := []goquerycache.Tag{}
		for _, id := range entityIDs(result) {
			tags = append(tags, goquerycache.IDTag(typ, id))
		}
		return append(tags, goquerycache.ListTag(typ))
	}
}

func entityIDs(result json.RawMessage) []string {
	dec := json.NewDecoder(bytes.NewReader(result))
	dec.UseNumber()

	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return nil
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		switch id := item["id"].(type) {
		case json.Number:
			ids = append(ids, id.String())
		case string:
			ids = append(ids, id)
		}
	}
	return ids
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
