// Package kv provides the named-slot key-value stores behind the local
// todo adapter.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for a slot that was never written.
var ErrNotFound = errors.New("kv: slot not found")

// Store reads and writes whole values under named slots.
type Store interface {
	Get(ctx context.Context, slot string) ([]byte, error)
	Set(ctx context.Context, slot string, value []byte) error
}
