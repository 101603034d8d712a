package goquerycache

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// Client is the entry point used by views: it resolves endpoint names
// against a registry and routes queries and mutations through one Store.
type Client struct {
	registry *Registry
	store    *Store
	logger   *slog.Logger

	c Config
}

// New creates a client that fetches through exec.
//
// If opts is nil, DefaultConfig is used. If 'now' is nil, time.Now is used.
// If logger is nil, logs are written to io.Discard.
func New(
	exec Executor,
	registry *Registry,
	opts *Config,
	now func() time.Time,
	logger *slog.Logger,
) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := DefaultConfig()
	if opts != nil {
		c = *opts
	}

	return &Client{
		registry: registry,
		store:    NewStore(exec, c.EvictionGrace, now, logger),
		logger:   logger,
		c:        c,
	}
}

// Query subscribes to the query endpoint name called with args. The caller
// owns the subscription and must Unsubscribe when it stops observing.
func (c *Client) Query(ctx context.Context, name string, args any) (*Subscription, error) {
	ep, err := c.registry.lookupKind(name, KindQuery)
	if err != nil {
		return nil, err
	}
	return c.store.Subscribe(ctx, ep, args)
}

// Mutation returns a trigger for the mutation endpoint name.
func (c *Client) Mutation(name string) (*Mutation, error) {
	ep, err := c.registry.lookupKind(name, KindMutation)
	if err != nil {
		return nil, err
	}
	return &Mutation{endpoint: ep, store: c.store, logger: c.logger}, nil
}

// Invalidate marks every entry carrying one of tags stale, as a settled
// mutation would.
func (c *Client) Invalidate(ctx context.Context, tags ...Tag) []Key {
	return c.store.Invalidate(ctx, tags...)
}

func (c *Client) Store() *Store { return c.store }

func (c *Client) Registry() *Registry { return c.registry }

func (c *Client) Stats() Stats { return c.store.Stats() }

// Mutation dispatches one mutation endpoint. Concurrent triggers are not
// deduplicated.
type Mutation struct {
	endpoint *Endpoint
	store    *Store
	logger   *slog.Logger
	inflight atomic.Int64
}

func (m *Mutation) Name() string { return m.endpoint.Name }

// IsLoading reports whether any trigger of this mutation is in flight.
func (m *Mutation) IsLoading() bool {
	return m.inflight.Load() > 0
}

// Trigger sends the mutation and waits for it to settle. On success the
// endpoint's invalidated tags are processed before Trigger returns; on
// failure the cache is left untouched and a *RequestError is returned.
func (m *Mutation) Trigger(ctx context.Context, args any) (json.RawMessage, error) {
	m.inflight.Add(1)
	defer m.inflight.Add(-1)

	data, err := m.store.execute(ctx, m.endpoint, args)
	if err != nil {
		m.logger.DebugContext(ctx, "mutation failed", "endpoint", m.endpoint.Name, "error", err)
		return nil, err
	}

	keys, err := m.store.OnMutationSettled(ctx, m.endpoint, args, data)
	if err != nil {
		return data, err
	}
	m.logger.DebugContext(ctx, "mutation settled", "endpoint", m.endpoint.Name, "invalidated", len(keys))

	return data, nil
}

func (c *Client) Config() Config { return c.c }
