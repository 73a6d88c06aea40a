package state

import "context"

// Store is a small binary kv abstraction; values are opaque blobs so codecs
// above it can pick their own encoding.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
