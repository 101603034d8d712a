package goquerycache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Key is the canonical identifier of an (endpoint, arguments) pair.
type Key string

// MakeKey derives the cache key for endpoint called with args.
//
// Arguments are JSON encoded, decoded into generic values with numbers kept
// verbatim and encoded again. encoding/json writes object keys in sorted
// order, so deep-equal arguments yield the same key no matter how they were
// built (struct, map, or a map populated in a different order).
func MakeKey(endpoint string, args any) (Key, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidArgs, endpoint, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidArgs, endpoint, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%w: %s: trailing data", ErrInvalidArgs, endpoint)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidArgs, endpoint, err)
	}

	return Key(endpoint + "(" + string(canonical) + ")"), nil
}
