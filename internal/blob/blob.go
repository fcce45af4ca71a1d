// Package blob stores image and QR code bytes and hands back durable URLs.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Driver identifies a concrete blob storage backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local filesystem (default)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // in-memory (tests)
)

// Store puts bytes under a key and deletes them by URL.
type Store interface {
	// Put stores data at key, replacing any blob already there, and returns
	// the blob's public URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Delete removes the blob behind url. Deleting a missing blob is not an error.
	Delete(ctx context.Context, url string) error
	Driver() Driver
}

// ErrForeignURL is returned when a URL was not issued by the store.
var ErrForeignURL = errors.New("blob: url not issued by this store")

// joinURL builds base + "/" + key.
func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

// keyFromURL reverses joinURL.
func keyFromURL(base, url string) (string, error) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, url)
	}
	key := strings.TrimPrefix(url, prefix)
	if err := validateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// validateKey rejects keys that could escape a filesystem root.
func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("invalid key contains '..'")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid absolute key")
	}
	return nil
}
