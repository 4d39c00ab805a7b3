// Package store defines the opaque key/value contract the ledger core is
// built on, and provides an in-memory and a Postgres-backed implementation
// of it. Values are stored verbatim; the store never interprets them.
package store

import "context"

// Store is a thin async key/value map. Get reports whether the key existed.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
}
