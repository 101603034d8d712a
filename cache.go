package goquerycache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	ErrWrongKind       = errors.New("endpoint kind mismatch")
	ErrEntryInUse      = errors.New("cache entry has active subscribers")
	ErrEntryPending    = errors.New("cache entry has a fetch in flight")
	ErrNoEntry         = errors.New("cache entry not found")
	ErrUnsubscribed    = errors.New("subscription is closed")
	ErrInvalidArgs     = errors.New("invalid endpoint arguments")
)

// ListID is the sentinel id of a tag that stands for a whole collection
// rather than a single entity.
const ListID = "LIST"

// Tag is an opaque (type, id) label attached to cache entries.
type Tag struct {
	Type string
	ID   string
}

// ListTag returns the collection tag for typ.
func ListTag(typ string) Tag {
	return Tag{Type: typ, ID: ListID}
}

// IDTag returns the tag for a single entity of typ.
func IDTag(typ string, id any) Tag {
	return Tag{Type: typ, ID: fmt.Sprint(id)}
}

func (t Tag) String() string {
	return t.Type + ":" + t.ID
}

// Status is the lifecycle state of a cache entry.
type Status int

const (
	StatusUninitialized Status = iota
	StatusPending
	StatusFulfilled
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusPending:
		return "pending"
	case StatusFulfilled:
		return "fulfilled"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Snapshot is a read-only copy of a cache entry taken under the store lock.
type Snapshot struct {
	Key         Key
	Endpoint    string
	Status      Status
	Data        json.RawMessage
	Err         error
	Tags        []Tag
	Subscribers int
	FetchedAt   time.Time
}

// IsLoading reports a first load: a fetch is in flight and there is no data
// to show yet.
func (s Snapshot) IsLoading() bool {
	return s.Status == StatusPending && s.Data == nil
}

// IsFetching reports whether any fetch is in flight, including refetches
// that serve stale data in the meantime.
func (s Snapshot) IsFetching() bool {
	return s.Status == StatusPending
}

func (s Snapshot) IsSuccess() bool { return s.Status == StatusFulfilled }

func (s Snapshot) IsError() bool { return s.Status == StatusRejected }

// Decode unmarshals the snapshot data into T. A snapshot without data
// yields the zero value of T.
func Decode[T any](s Snapshot) (T, error) {
	var v T
	if len(s.Data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(s.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", s.Key, err)
	}
	return v, nil
}

// Stats holds cache activity counters.
type Stats struct {
	Fetches       int64 `json:"fetches"`
	Coalesced     int64 `json:"coalesced"`
	Hits          int64 `json:"hits"`
	Invalidations int64 `json:"invalidations"`
	Evictions     int64 `json:"evictions"`
	Entries       int   `json:"entries"`
}
