package storage

import (
	"context"
	"errors"
)

var (
	// ErrStorageWrite wraps any transport or auth failure from the object
	// store. Writes are not retried here.
	ErrStorageWrite = errors.New("storage: write failed")
	// ErrMissingPublicBaseURL is returned by call sites that require a
	// configured public base URL when none is set.
	ErrMissingPublicBaseURL = errors.New("storage: public base URL is not configured")
)

// Config carries object-store settings. It is passed into constructors
// explicitly so tests can inject alternatives.
type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicBaseURL   string
	UseSSL          bool
}

// ObjectStore is the write surface of an S3-compatible bucket. Stored objects
// are immutable: a key, once written, is never reassigned to different bytes
// because keys are unique by construction.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
