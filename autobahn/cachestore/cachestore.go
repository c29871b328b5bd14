// Package cachestore provides a TTL'd key/value cache, used to avoid repeated
// entity and URL resolution round-trips during pipeline evaluation.
package cachestore

import (
	"context"
)

type CacheStore interface {
	// Get returns the cached value, or "" on a miss.
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}
