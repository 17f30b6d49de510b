package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"request_pipeline/internal/web"
)

// Entry is a persisted response. Body-mode entries hold the rendered
// status, content type and bytes; controller-mode entries hold the JSON
// encoding of the controller result in Body. Kind names the Codec that
// encoded the result, empty for plain JSON values.
type Entry struct {
	Mode        web.CacheMode `json:"mode"`
	Kind        string        `json:"kind,omitempty"`
	Status      int           `json:"status,omitempty"`
	ContentType string        `json:"type,omitempty"`
	Body        []byte        `json:"body"`
}

// Codec round-trips controller results whose Go type a responder depends
// on. Encode reports ok=false for results it does not handle.
type Codec interface {
	Kind() string
	Encode(result any) (raw []byte, ok bool, err error)
	Decode(raw []byte) (any, error)
}

// Result decodes a controller-mode body. Entries written by a codec need
// the same codec back.
func (e *Entry) Result(codecs ...Codec) (any, error) {
	if e.Kind != "" {
		for _, c := range codecs {
			if c.Kind() == e.Kind {
				v, err := c.Decode(e.Body)
				if err != nil {
					return nil, fmt.Errorf("decode cached %s result: %w", e.Kind, err)
				}
				return v, nil
			}
		}
		return nil, fmt.Errorf("decode cached result: no codec for kind %q", e.Kind)
	}

	var v any
	if err := json.Unmarshal(e.Body, &v); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return v, nil
}

// ControllerEntry encodes a controller result with the first codec that
// accepts it, or as plain JSON.
func ControllerEntry(result any, codecs ...Codec) (*Entry, error) {
	for _, c := range codecs {
		raw, ok, err := c.Encode(result)
		if err != nil {
			return nil, fmt.Errorf("encode %s result: %w", c.Kind(), err)
		}
		if ok {
			return &Entry{Mode: web.CacheModeController, Kind: c.Kind(), Body: raw}, nil
		}
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode controller result: %w", err)
	}
	return &Entry{Mode: web.CacheModeController, Body: raw}, nil
}

// Store persists response entries. Get returns (nil, nil) for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
}

// KVStore adapts a byte Cache into a Store using JSON records.
type KVStore struct {
	cache Cache
}

// NewKVStore wraps c.
func NewKVStore(c Cache) *KVStore {
	return &KVStore{cache: c}
}

// Backend returns the wrapped cache.
func (s *KVStore) Backend() Cache {
	return s.cache
}

func (s *KVStore) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, &CacheError{Op: "decode", Key: key, Err: err}
	}
	return &e, nil
}

func (s *KVStore) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return &CacheError{Op: "encode", Key: key, Err: err}
	}
	return s.cache.Set(ctx, key, raw, ttl)
}
