package mapstore

import (
	"context"
	"errors"
	"net/url"
)

// ErrKeyNotFound is returned by Map.Get for missing keys.
var ErrKeyNotFound = errors.New("key not found")

// Map is the byte-level storage behind a Store.
type Map interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// escapeKey makes a reference safe to use as a file or object name.
func escapeKey(key string) string {
	return url.PathEscape(key)
}

func unescapeKey(name string) (string, error) {
	return url.PathUnescape(name)
}
