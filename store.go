package goquerycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

type entry struct {
	key      Key
	endpoint *Endpoint
	args     any

	status    Status
	data      json.RawMessage
	err       error
	tags      []Tag
	fetchedAt time.Time

	subs map[uuid.UUID]*Subscription

	evictTimer *time.Timer
	evictGen   uint64
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Key:         e.key,
		Endpoint:    e.endpoint.Name,
		Status:      e.status,
		Data:        e.data,
		Err:         e.err,
		Tags:        append([]Tag(nil), e.tags...),
		Subscribers: len(e.subs),
		FetchedAt:   e.fetchedAt,
	}
}

// Store owns every cache entry together with the tag index and the set of
// in-flight fetches. All state changes happen under mu; the only work done
// outside of it is the network call itself.
type Store struct {
	mu      sync.Mutex
	entries map[Key]*entry
	index   *TagIndex
	flights singleflight.Group
	stats   Stats

	exec   Executor
	grace  time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewStore creates an empty store that fetches through exec. Entries left
// without subscribers are evicted once grace has elapsed; a grace of zero
// or less evicts them immediately.
func NewStore(exec Executor, grace time.Duration, now func() time.Time, logger *slog.Logger) *Store {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Store{
		entries: make(map[Key]*entry),
		index:   NewTagIndex(),
		exec:    exec,
		grace:   grace,
		now:     now,
		logger:  logger,
	}
}

// GetOrCreate returns the entry for the query ep called with args, creating
// it in the uninitialized state when it does not exist yet. A new entry has
// no subscribers, so its eviction timer starts right away; subscribing stops
// it.
func (s *Store) GetOrCreate(ep *Endpoint, args any) (Snapshot, error) {
	key, args, err := queryKey(ep, args)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, created := s.getOrCreateLocked(key, ep, args)
	if created {
		s.armEvictionLocked(e, max(s.grace, 0))
	}
	return e.snapshot(), nil
}

// queryKey checks that ep is a query and derives the cache key of args.
// Nil arguments are replaced by the endpoint's DefaultArgs first.
func queryKey(ep *Endpoint, args any) (Key, any, error) {
	if ep.Kind != KindQuery {
		return "", nil, fmt.Errorf("%w: %s is a %s", ErrWrongKind, ep.Name, ep.Kind)
	}

	args = ep.argsOrDefault(args)
	key, err := MakeKey(ep.Name, args)
	if err != nil {
		return "", nil, err
	}
	return key, args, nil
}

func (s *Store) getOrCreateLocked(key Key, ep *Endpoint, args any) (*entry, bool) {
	if e, ok := s.entries[key]; ok {
		return e, false
	}

	e := &entry{
		key:      key,
		endpoint: ep,
		args:     args,
		status:   StatusUninitialized,
		subs:     make(map[uuid.UUID]*Subscription),
	}
	s.entries[key] = e
	return e, true
}

// StartFetch moves the entry to pending and dispatches its request. When a
// fetch for key is already in flight no new request is made and the
// returned channel delivers the result of the existing one. Entries only
// exist for query endpoints, created by GetOrCreate or Subscribe.
func (s *Store) StartFetch(ctx context.Context, key Key) (<-chan singleflight.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoEntry, key)
	}
	return s.startFetchLocked(ctx, e), nil
}

// startFetchLocked relies on status pending and a live singleflight call for
// the key being set and cleared together under mu.
func (s *Store) startFetchLocked(ctx context.Context, e *entry) <-chan singleflight.Result {
	if e.status == StatusPending {
		s.stats.Coalesced++
		s.logger.DebugContext(ctx, "fetch coalesced", "key", e.key)
	} else {
		e.status = StatusPending
		s.stats.Fetches++
		s.logger.DebugContext(ctx, "fetch started", "key", e.key)
		s.notifyLocked(e)
	}

	// the request outlives the caller: it completes for whoever observes
	// the entry next
	fetchCtx := context.WithoutCancel(ctx)
	key, ep, args := e.key, e.endpoint, e.args

	return s.flights.DoChan(string(key), func() (any, error) {
		data, err := s.execute(fetchCtx, ep, args)
		s.completeFetch(fetchCtx, key, data, err)
		return data, err
	})
}

// completeFetch records the outcome of a fetch. A success replaces data and
// tags wholesale and re-associates the key in the index; a failure keeps the
// last known-good data and tags.
func (s *Store) completeFetch(ctx context.Context, key Key, data json.RawMessage, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flights.Forget(string(key))

	e, ok := s.entries[key]
	if !ok {
		s.logger.DebugContext(ctx, "dropping result for evicted entry", "key", key)
		return
	}

	if err != nil {
		e.status = StatusRejected
		e.err = err
		s.logger.DebugContext(ctx, "fetch rejected", "key", key, "error", err)
	} else {
		e.status = StatusFulfilled
		e.data = data
		e.err = nil
		e.tags = dedupeTags(e.endpoint.providedTags(data, e.args))
		e.fetchedAt = s.now()
		s.index.Associate(key, e.tags)
		s.logger.DebugContext(ctx, "fetch fulfilled", "key", key, "tags", len(e.tags))
	}

	s.notifyLocked(e)

	if len(e.subs) == 0 {
		s.scheduleEvictionLocked(e)
	}
}

// execute builds and sends the request for ep, normalising every failure
// into a *RequestError.
func (s *Store) execute(ctx context.Context, ep *Endpoint, args any) (json.RawMessage, error) {
	req, err := ep.Build(args)
	if err != nil {
		return nil, &RequestError{
			Endpoint: ep.Name,
			Err:      fmt.Errorf("%w: %w", ErrInvalidArgs, err),
		}
	}

	data, err := s.exec.Execute(ctx, req)
	if err == nil {
		return data, nil
	}

	// never modify the executor's error value
	if reqErr, ok := err.(*RequestError); ok {
		cp := *reqErr
		if cp.Endpoint == "" {
			cp.Endpoint = ep.Name
		}
		return nil, &cp
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return nil, &RequestError{
			Endpoint:   ep.Name,
			Method:     reqErr.Method,
			Path:       reqErr.Path,
			StatusCode: reqErr.StatusCode,
			Body:       reqErr.Body,
			Err:        err,
		}
	}

	return nil, &RequestError{
		Endpoint: ep.Name,
		Method:   req.Method,
		Path:     req.Path,
		Err:      err,
	}
}

// Evict removes an unobserved, settled entry and its tag associations.
func (s *Store) Evict(key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoEntry, key)
	}
	if len(e.subs) > 0 {
		return fmt.Errorf("%w: %s", ErrEntryInUse, key)
	}
	if e.status == StatusPending {
		return fmt.Errorf("%w: %s", ErrEntryPending, key)
	}

	s.stopEvictionLocked(e)
	s.evictLocked(e)
	return nil
}

func (s *Store) evictLocked(e *entry) {
	delete(s.entries, e.key)
	s.index.Dissociate(e.key)
	s.stats.Evictions++
	s.logger.DebugContext(context.Background(), "entry evicted", "key", e.key)
}

// scheduleEvictionLocked arms the grace timer of an unobserved entry. A
// pending entry is left alone; completeFetch arms it once the fetch settles.
func (s *Store) scheduleEvictionLocked(e *entry) {
	if e.evictTimer != nil || e.status == StatusPending {
		return
	}
	if s.grace <= 0 {
		s.evictLocked(e)
		return
	}
	s.armEvictionLocked(e, s.grace)
}

func (s *Store) armEvictionLocked(e *entry, d time.Duration) {
	e.evictGen++
	gen := e.evictGen
	e.evictTimer = time.AfterFunc(d, func() {
		s.expire(e, gen)
	})
}

func (s *Store) stopEvictionLocked(e *entry) {
	if e.evictTimer == nil {
		return
	}
	e.evictTimer.Stop()
	e.evictTimer = nil
	e.evictGen++
}

func (s *Store) expire(e *entry, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// a timer that lost the race against Stop or a resubscription
	if cur, ok := s.entries[e.key]; !ok || cur != e || e.evictGen != gen {
		return
	}
	e.evictTimer = nil

	if len(e.subs) > 0 || e.status == StatusPending {
		return
	}
	s.evictLocked(e)
}

// notifyLocked wakes every subscriber of e. Each subscriber holds at most
// one pending notification, so slow readers never block the store.
func (s *Store) notifyLocked(e *entry) {
	for _, sub := range e.subs {
		select {
		case sub.changes <- struct{}{}:
		default:
		}
	}
}

// Snapshot returns a copy of the entry for key.
func (s *Store) Snapshot(key Key) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// Keys returns the keys of all live entries, sorted.
func (s *Store) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// KeysForTag resolves tag through the index.
func (s *Store) KeysForTag(tag Tag) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.index.KeysForTag(tag)
}

// RebuildIndex recomputes the tag index from the entries' own tag sets,
// which are authoritative.
func (s *Store) RebuildIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()

	tagsByKey := make(map[Key][]Tag, len(s.entries))
	for k, e := range s.entries {
		tagsByKey[k] = e.tags
	}
	s.index.Rebuild(tagsByKey)
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.Entries = len(s.entries)
	return st
}
