package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	// Register the WebP decoder so WebP sources pass through image.Decode.
	_ "golang.org/x/image/webp"
)

var (
	// ErrDecode indicates the source bytes could not be decoded as an image.
	ErrDecode = errors.New("images: decode failed")
	// ErrFetch indicates a remote source was unreachable or returned non-2xx.
	ErrFetch = errors.New("images: fetch failed")
	// ErrUnsupportedFormat indicates the requested output format cannot be
	// encoded by this runtime. Callers are expected to retry with PNG.
	ErrUnsupportedFormat = errors.New("images: unsupported output format")
)

// Format enumerates supported re-encoding targets.
type Format string

const (
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// MIME returns the media type for the format.
func (f Format) MIME() string {
	if f == FormatWebP {
		return "image/webp"
	}
	return "image/png"
}

// Source describes one image input. Exactly one field should be set: raw
// encoded bytes from an upload, an inline data URL, or a remote http(s) URL.
type Source struct {
	Data    []byte
	DataURL string
	URL     string
}

// FromBytes wraps raw encoded image bytes.
func FromBytes(data []byte) Source { return Source{Data: data} }

// FromDataURL wraps an inline data URL.
func FromDataURL(dataURL string) Source { return Source{DataURL: dataURL} }

// FromURL wraps a remote image URL.
func FromURL(url string) Source { return Source{URL: url} }

// Options bounds the normalization output.
type Options struct {
	// MaxDimension bounds the larger of width/height. Sources already within
	// the bound are never upscaled.
	MaxDimension int
	Format       Format
	// Quality in [0,1]; ignored for PNG.
	Quality float64
}

// Result is a normalized image: the base64 payload without any data-URL
// header, plus post-normalization metadata.
type Result struct {
	Base64 string
	MIME   string
	Width  int
	Height int
}

// Normalizer decodes, bounds and re-encodes image sources.
type Normalizer struct {
	httpClient *http.Client
}

// NewNormalizer constructs a Normalizer. A nil client gets a default with a
// conservative timeout for remote fetches.
func NewNormalizer(client *http.Client) *Normalizer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Normalizer{httpClient: client}
}

// Normalize resolves the source, decodes it, scales it down to fit
// opts.MaxDimension preserving aspect ratio, and re-encodes it at the
// requested format and quality. The source is never mutated.
func (n *Normalizer) Normalize(ctx context.Context, src Source, opts Options) (Result, error) {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = 1024
	}
	if opts.Format == "" {
		opts.Format = FormatPNG
	}

	raw, err := n.resolve(ctx, src)
	if err != nil {
		return Result{}, err
	}
	return normalizeRaw(raw, opts)
}

// NormalizeWithinBytes behaves like Normalize but additionally bounds the
// encoded payload size: while the output exceeds maxBytes, the dimension
// bound shrinks by 20% down to a 256px floor. The source is resolved once.
func (n *Normalizer) NormalizeWithinBytes(ctx context.Context, src Source, opts Options, maxBytes int) (Result, error) {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = 1024
	}
	if opts.Format == "" {
		opts.Format = FormatPNG
	}

	raw, err := n.resolve(ctx, src)
	if err != nil {
		return Result{}, err
	}

	res, err := normalizeRaw(raw, opts)
	if err != nil || maxBytes <= 0 {
		return res, err
	}
	for encodedSize(res.Base64) > maxBytes && opts.MaxDimension > 256 {
		opts.MaxDimension = opts.MaxDimension * 4 / 5
		if res, err = normalizeRaw(raw, opts); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

// encodedSize estimates the binary size of a base64 payload.
func encodedSize(b64 string) int {
	return len(b64) * 3 / 4
}

func normalizeRaw(raw []byte, opts Options) (Result, error) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	scale := math.Min(
		math.Min(
			float64(opts.MaxDimension)/float64(width),
			float64(opts.MaxDimension)/float64(height),
		),
		1,
	)
	targetW := int(math.Round(float64(width) * scale))
	targetH := int(math.Round(float64(height) * scale))
	if scale < 1 {
		img = imaging.Resize(img, targetW, targetH, imaging.Lanczos)
	}

	encoded, err := encode(img, opts.Format, opts.Quality)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Base64: base64.StdEncoding.EncodeToString(encoded),
		MIME:   opts.Format.MIME(),
		Width:  targetW,
		Height: targetH,
	}, nil
}

// NormalizeAll normalizes sources concurrently. The result slice preserves
// the input order regardless of completion order; the first error wins.
func (n *Normalizer) NormalizeAll(ctx context.Context, sources []Source, opts Options) ([]Result, error) {
	results := make([]Result, len(sources))
	errs := make([]error, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			results[i], errs[i] = n.Normalize(ctx, src, opts)
		}(i, src)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (n *Normalizer) resolve(ctx context.Context, src Source) ([]byte, error) {
	switch {
	case len(src.Data) > 0:
		return src.Data, nil
	case src.DataURL != "":
		parsed, err := ParseDataURL(src.DataURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		raw, err := base64.StdEncoding.DecodeString(parsed.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64 payload: %v", ErrDecode, err)
		}
		return raw, nil
	case src.URL != "":
		return n.fetch(ctx, src.URL)
	default:
		return nil, fmt.Errorf("%w: empty source", ErrDecode)
	}
}

func (n *Normalizer) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrFetch, url, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return raw, nil
}

func encode(img image.Image, format Format, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatPNG:
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("%w: png: %v", ErrUnsupportedFormat, err)
		}
	case FormatWebP:
		if quality <= 0 || quality > 1 {
			quality = 0.8
		}
		enc, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality*100))
		if err != nil {
			return nil, fmt.Errorf("%w: webp: %v", ErrUnsupportedFormat, err)
		}
		if err := webp.Encode(&buf, img, enc); err != nil {
			return nil, fmt.Errorf("%w: webp: %v", ErrUnsupportedFormat, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return buf.Bytes(), nil
}
