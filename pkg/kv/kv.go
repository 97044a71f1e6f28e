// Package kv is the key-value layer under the koe stores. Voice
// profiles, command lists, and pipeline settings are persisted as
// encoded blobs keyed by hierarchical paths such as
// ["profile", "owner"] or ["command", id].
//
// Keys are slices of string segments joined by a configurable
// separator (default ':') when encoded for storage. The package ships
// a BadgerDB-backed implementation for the daemon and an in-memory
// implementation for tests.
package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Key is a hierarchical path represented as a slice of string
// segments. Segments must not contain the configured separator;
// encoding panics otherwise.
type Key []string

// String returns the key joined with ':' for display and debugging.
// Storage encoding goes through Options instead.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Entry is a key-value pair returned by List and consumed by BatchSet.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path-based keys.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair. Overwrites any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key Key) error

	// List iterates over all entries whose key starts with the given
	// prefix, in lexicographic order of the encoded key. A nil prefix
	// lists everything.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchSet atomically stores multiple key-value pairs.
	BatchSet(ctx context.Context, entries []Entry) error

	// BatchDelete atomically removes multiple keys.
	BatchDelete(ctx context.Context, keys []Key) error

	// Close releases any resources held by the store.
	Close() error
}

// DefaultSeparator joins key segments in the encoded form.
const DefaultSeparator byte = ':'

// Options configures store behavior.
type Options struct {
	// Separator is the byte used to join key segments when encoding
	// for storage. Zero means DefaultSeparator.
	Separator byte
}

func (o *Options) sep() byte {
	if o != nil && o.Separator != 0 {
		return o.Separator
	}
	return DefaultSeparator
}

// encode converts a Key to its stored byte form. A segment containing
// the separator would corrupt the key space, so it panics.
func (o *Options) encode(k Key) []byte {
	s := o.sep()
	segs := make([][]byte, len(k))
	for i, seg := range k {
		if strings.IndexByte(seg, s) >= 0 {
			panic(fmt.Sprintf("kv: key segment %q contains separator %q", seg, s))
		}
		segs[i] = []byte(seg)
	}
	return bytes.Join(segs, []byte{s})
}

// decode converts a stored byte form back to a Key.
func (o *Options) decode(b []byte) Key {
	parts := bytes.Split(b, []byte{o.sep()})
	k := make(Key, len(parts))
	for i, p := range parts {
		k[i] = string(p)
	}
	return k
}
