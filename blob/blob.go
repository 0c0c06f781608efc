// Package blob implements opaque key-addressed byte storage for uploads
// and previews (spec §4.3). Interface shape grounded on
// other_examples/.../fyrsmithlabs-contextd/internal/vectorstore/interface.go's
// interface-first, sentinel-error style.
package blob

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound     = errors.New("blob: key not found")
	ErrInvalidKey   = errors.New("blob: key rejected (traversal or malformed)")
	ErrAlreadyExists = errors.New("blob: key already exists")
)

// Store is the spec §4.3 contract. Keys are opaque; callers must not
// interpret them as filesystem paths. Implementations reject keys
// containing traversal sequences.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// PresignedGet returns a time-limited URL if the backend supports it.
	// The local filesystem backend does not, and returns ("", nil).
	PresignedGet(ctx context.Context, key string, ttlSeconds int) (string, error)
}
