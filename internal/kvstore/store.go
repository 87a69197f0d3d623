// Package kvstore is the local cache: a flat namespace of string keys
// holding JSON documents, with a storage quota and a change feed that
// only reports writes made by other store instances.
package kvstore

import (
	"context"
	"errors"
)

var (
	// ErrQuotaExceeded is returned when a write would exceed the namespace quota.
	ErrQuotaExceeded = errors.New("local cache quota exceeded")
)

// Change describes a key written or removed by another store instance
type Change struct {
	Key     string `json:"key"`
	Origin  string `json:"origin"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Store defines the local cache operations
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Watch(ctx context.Context) (<-chan Change, error)
}
