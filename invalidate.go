package goquerycache

import (
	"context"
	"encoding/json"
	"fmt"
)

// Invalidate marks every entry carrying one of tags as stale. Observed
// entries are refetched straight away and keep serving their previous data
// until the refetch settles; unobserved ones drop back to uninitialized so
// the next subscriber triggers a fresh fetch. Entries with a fetch already
// in flight join that fetch. The affected keys are returned.
func (s *Store) Invalidate(ctx context.Context, tags ...Tag) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[Key]struct{})
	var affected []Key

	for _, tag := range tags {
		for _, key := range s.index.KeysForTag(tag) {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			e, ok := s.entries[key]
			if !ok {
				continue
			}

			affected = append(affected, key)
			s.stats.Invalidations++
			s.logger.DebugContext(ctx, "entry invalidated", "key", key, "tag", tag.String(), "subscribers", len(e.subs))

			switch {
			case len(e.subs) > 0:
				s.startFetchLocked(ctx, e)
			case e.status != StatusPending:
				e.status = StatusUninitialized
			}
		}
	}

	return affected
}

// OnMutationSettled runs invalidation for a mutation that completed
// successfully. Callers must not invoke it for failed mutations.
func (s *Store) OnMutationSettled(ctx context.Context, ep *Endpoint, args any, result json.RawMessage) ([]Key, error) {
	if ep.Kind != KindMutation {
		return nil, fmt.Errorf("%w: %s is a %s", ErrWrongKind, ep.Name, ep.Kind)
	}

	tags := ep.invalidatedTags(result, args)
	if len(tags) == 0 {
		return nil, nil
	}
	return s.Invalidate(ctx, tags...), nil
}
