package storage

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"genie/internal/images"
)

const tokenLength = 11

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// Writer persists artifact bytes under a logical folder prefix and resolves a
// stable public URL for them.
type Writer struct {
	store  ObjectStore
	cfg    Config
	logger zerolog.Logger
}

// NewWriter builds a Writer over the given store.
func NewWriter(store ObjectStore, cfg Config, logger zerolog.Logger) *Writer {
	return &Writer{store: store, cfg: cfg, logger: logger}
}

// StoreOptions vary per call site.
type StoreOptions struct {
	// RequirePublicBase makes a missing public base URL fatal instead of
	// falling back to an endpoint-derived URL. Share-facing flows set this;
	// internal previews tolerate the fallback.
	RequirePublicBase bool
	// Filename overrides the generated `{millis}-{token}.{ext}` name. The
	// extension is still appended from the media type.
	Filename string
}

// Store writes the bytes under `{folderPrefix}/{filename}` and returns the
// public URL. Filenames are unique by construction (millisecond timestamp
// plus random token), so concurrent callers need no coordination.
func (w *Writer) Store(ctx context.Context, data []byte, mediaType, folderPrefix string, opts StoreOptions) (string, error) {
	ext := images.ExtensionFromMediaType(mediaType)
	filename := GenerateFilename(ext)
	if opts.Filename != "" {
		filename = opts.Filename + "." + ext
	}
	key := strings.TrimRight(folderPrefix, "/") + "/" + filename

	url, err := w.publicURL(key, opts)
	if err != nil {
		return "", err
	}

	if err := w.store.Put(ctx, key, data, mediaType); err != nil {
		return "", err
	}

	w.logger.Debug().
		Str("key", key).
		Str("media_type", mediaType).
		Int("bytes", len(data)).
		Msg("stored object")
	return url, nil
}

// StoreDataURL parses an inline data URL and stores its payload. directoryName,
// when non-empty, overrides the generated filename.
func (w *Writer) StoreDataURL(ctx context.Context, dataURL, folderPrefix, directoryName string, opts StoreOptions) (string, error) {
	parsed, err := images.ParseDataURL(dataURL)
	if err != nil {
		return "", fmt.Errorf("storage: invalid image data: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(parsed.Data)
	if err != nil {
		return "", fmt.Errorf("storage: invalid image data: %w", err)
	}
	opts.Filename = directoryName
	return w.Store(ctx, data, parsed.MediaType, folderPrefix, opts)
}

// publicURL resolves the externally reachable URL for a key: the configured
// public base wins; otherwise the URL is derived from the endpoint and
// bucket, unless the call site forbids that fallback.
func (w *Writer) publicURL(key string, opts StoreOptions) (string, error) {
	if base := strings.TrimRight(w.cfg.PublicBaseURL, "/"); base != "" {
		return base + "/" + key, nil
	}
	if opts.RequirePublicBase {
		return "", ErrMissingPublicBaseURL
	}
	host, secure := endpointHost(w.cfg.Endpoint, w.cfg.UseSSL)
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, host, w.cfg.Bucket, key), nil
}

// GenerateFilename returns `{unixMillis}-{randomToken}.{ext}`. No uniqueness
// check is made against the store; millisecond timestamp plus an 11-char
// random token makes collisions negligible, an accepted risk.
func GenerateFilename(ext string) string {
	return fmt.Sprintf("%d-%s.%s", time.Now().UnixMilli(), randomToken(tokenLength), ext)
}

func randomToken(n int) string {
	max := big.NewInt(int64(len(base36)))
	b := make([]byte, n)
	for i := range b {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return fallbackToken(n)
		}
		b[i] = base36[v.Int64()]
	}
	return string(b)
}

var (
	fallbackOnce sync.Once
	fallbackMu   sync.Mutex
	fallbackSrc  *mathrand.Rand
)

// fallbackToken covers a broken platform entropy source. A single PRNG
// seeded once keeps tokens distinct across calls even then.
func fallbackToken(n int) string {
	fallbackOnce.Do(func() {
		fallbackSrc = mathrand.New(mathrand.NewSource(time.Now().UnixNano()))
	})
	fallbackMu.Lock()
	defer fallbackMu.Unlock()
	b := make([]byte, n)
	for i := range b {
		b[i] = base36[fallbackSrc.Intn(len(base36))]
	}
	return string(b)
}
