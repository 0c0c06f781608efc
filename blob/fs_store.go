package blob

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/doccat/server/logger"
)

var log = logger.New("blob")

// fsStore is a local-filesystem blob backend keyed by opaque
// caller-supplied keys (NewKey generates random ones). No
// S3/minio client is exercised by any runnable repo in the retrieved
// corpus (only referenced in dependency-manifest metadata, not code), so
// this implements the spec's Blob Store contract directly on disk instead
// of fabricating cloud-SDK wiring (see DESIGN.md).
type fsStore struct {
	baseDir string
}

// NewFSStore returns a blob.Store rooted at baseDir. baseDir is created if
// missing.
func NewFSStore(baseDir string) (Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob base dir: %w", err)
	}
	return &fsStore{baseDir: baseDir}, nil
}

// NewKey generates a fresh uuid-prefixed-style opaque key. Callers that
// want content addressing may instead derive their own key from a hash of
// the bytes before calling Put; either shape satisfies spec §4.3.
func NewKey(suffix string) string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	key := hex.EncodeToString(b[:])
	if suffix != "" {
		key += "-" + suffix
	}
	return key
}

func (s *fsStore) resolve(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || strings.ContainsAny(key, "/\\") || strings.HasPrefix(key, ".") {
		return "", ErrInvalidKey
	}
	// shard by the first two hex characters to avoid one giant flat directory
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	dir := filepath.Join(s.baseDir, shard)
	full := filepath.Join(dir, key)

	// defense in depth: resolved path must stay under baseDir even if the
	// shard/key combination above is ever loosened.
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", err
	}
	absFull, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absFull, absBase+string(os.PathSeparator)) {
		return "", ErrInvalidKey
	}
	return full, nil
}

func (s *fsStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	full, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create blob shard dir: %w", err)
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return "", ErrAlreadyExists
	}
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(full)
		return "", fmt.Errorf("write blob: %w", err)
	}
	// content type is recorded as a sidecar so Get callers can report it
	// without re-sniffing the bytes.
	if contentType != "" {
		_ = os.WriteFile(full+".ctype", []byte(contentType), 0o644)
	}
	return key, nil
}

func (s *fsStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (s *fsStore) Exists(ctx context.Context, key string) (bool, error) {
	full, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *fsStore) Delete(ctx context.Context, key string) error {
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	_ = os.Remove(full + ".ctype")
	return nil
}

// PresignedGet is an optional backend capability (spec §4.3); the local
// filesystem backend doesn't have URLs, so callers fall back to streaming
// via Get. Returning ("", nil) signals "not supported", not an error.
func (s *fsStore) PresignedGet(ctx context.Context, key string, ttlSeconds int) (string, error) {
	log.Debugw("presigned URLs not supported by the filesystem blob backend", "key", key)
	return "", nil
}
