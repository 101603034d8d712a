package goquerycache

import "sort"

// TagIndex maps tags to the cache keys that currently carry them, and keys
// back to their tags. It is derived from the entries' tag sets and is not
// safe for concurrent use; the Store serializes access to it.
type TagIndex struct {
	byTag map[Tag]map[Key]struct{}
	byKey map[Key][]Tag
}

func NewTagIndex() *TagIndex {
	return &TagIndex{
		byTag: make(map[Tag]map[Key]struct{}),
		byKey: make(map[Key][]Tag),
	}
}

// Associate replaces whatever tags key had with tags.
func (ti *TagIndex) Associate(key Key, tags []Tag) {
	ti.Dissociate(key)

	tags = dedupeTags(tags)
	if len(tags) == 0 {
		return
	}

	for _, t := range tags {
		keys, ok := ti.byTag[t]
		if !ok {
			keys = make(map[Key]struct{})
			ti.byTag[t] = keys
		}
		keys[key] = struct{}{}
	}
	ti.byKey[key] = tags
}

// Dissociate drops every association of key.
func (ti *TagIndex) Dissociate(key Key) {
	for _, t := range ti.byKey[key] {
		keys := ti.byTag[t]
		delete(keys, key)
		if len(keys) == 0 {
			delete(ti.byTag, t)
		}
	}
	delete(ti.byKey, key)
}

// KeysForTag returns the keys carrying tag, sorted.
func (ti *TagIndex) KeysForTag(tag Tag) []Key {
	keys := make([]Key, 0, len(ti.byTag[tag]))
	for k := range ti.byTag[tag] {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (ti *TagIndex) TagsForKey(key Key) []Tag {
	return append([]Tag(nil), ti.byKey[key]...)
}

// Rebuild discards the index and recomputes it from the given tag sets.
func (ti *TagIndex) Rebuild(tagsByKey map[Key][]Tag) {
	ti.byTag = make(map[Tag]map[Key]struct{})
	ti.byKey = make(map[Key][]Tag)
	for k, tags := range tagsByKey {
		ti.Associate(k, tags)
	}
}

func (ti *TagIndex) Len() int {
	return len(ti.byTag)
}

func dedupeTags(tags []Tag) []Tag {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[Tag]struct{}, len(tags))
	out := make([]Tag, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
