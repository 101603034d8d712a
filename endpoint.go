package goquerycache

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
)

var ErrDuplicateEndpoint = errors.New("duplicate endpoint name")

// Kind distinguishes reads, which are cached, from writes, which invalidate.
type Kind int

const (
	KindQuery Kind = iota
	KindMutation
)

func (k Kind) String() string {
	if k == KindMutation {
		return "mutation"
	}
	return "query"
}

// Request describes a single call against the REST backend.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// RequestBuilder turns endpoint arguments into a Request. It must not have
// side effects; an error is reported when args has an unexpected shape.
type RequestBuilder func(args any) (Request, error)

// TagsFunc computes tags from a settled result and the arguments of the
// call. For mutations the result is ignored by most implementations.
type TagsFunc func(result json.RawMessage, args any) []Tag

// Endpoint is an immutable descriptor of a query or mutation.
type Endpoint struct {
	Name  string
	Kind  Kind
	Build RequestBuilder

	// ProvidesTags is consulted for queries after every successful fetch.
	ProvidesTags TagsFunc
	// InvalidatesTags is consulted for mutations after a successful call.
	InvalidatesTags TagsFunc

	// DefaultArgs replaces nil query arguments, so that a call without
	// arguments and one with the zero value share a cache entry.
	DefaultArgs any
}

func (e *Endpoint) argsOrDefault(args any) any {
	if args == nil {
		return e.DefaultArgs
	}
	return args
}

func (e *Endpoint) providedTags(result json.RawMessage, args any) []Tag {
	if e.ProvidesTags == nil {
		return nil
	}
	return e.ProvidesTags(result, args)
}

func (e *Endpoint) invalidatedTags(result json.RawMessage, args any) []Tag {
	if e.InvalidatesTags == nil {
		return nil
	}
	return e.InvalidatesTags(result, args)
}

// StaticTags returns a TagsFunc that always yields tags.
func StaticTags(tags ...Tag) TagsFunc {
	return func(json.RawMessage, any) []Tag {
		return append([]Tag(nil), tags...)
	}
}

// Registry holds endpoint definitions by name.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
}

func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]*Endpoint)}
}

// Define validates e and stores a copy of it.
func (r *Registry) Define(e Endpoint) (*Endpoint, error) {
	if e.Name == "" {
		return nil, errors.New("endpoint name is empty")
	}
	if e.Build == nil {
		return nil, fmt.Errorf("endpoint %s: nil request builder", e.Name)
	}
	if e.Kind == KindQuery && e.InvalidatesTags != nil {
		return nil, fmt.Errorf("endpoint %s: queries cannot invalidate tags", e.Name)
	}
	if e.Kind == KindMutation && e.ProvidesTags != nil {
		return nil, fmt.Errorf("endpoint %s: mutations cannot provide tags", e.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.endpoints[e.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEndpoint, e.Name)
	}

	def := e
	r.endpoints[e.Name] = &def
	return &def, nil
}

// MustDefine is Define for startup code, where a bad table is fatal.
func (r *Registry) MustDefine(e Endpoint) *Endpoint {
	def, err := r.Define(e)
	if err != nil {
		panic(err)
	}
	return def
}

func (r *Registry) Lookup(name string) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.endpoints[name]
	return e, ok
}

// Names returns the registered endpoint names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookupKind(name string, kind Kind) (*Endpoint, error) {
	e, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
	}
	if e.Kind != kind {
		return nil, fmt.Errorf("%w: %s is a %s", ErrWrongKind, name, e.Kind)
	}
	return e, nil
}
