package images

import (
	"fmt"
	"strings"
)

// DataURL is the parsed form of a data:{mime};base64,{payload} string.
type DataURL struct {
	MediaType string
	Data      string
}

// ParseDataURL splits an inline data URL into its media type and base64
// payload. Only base64-encoded data URLs are accepted.
func ParseDataURL(raw string) (DataURL, error) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return DataURL{}, fmt.Errorf("not a data URL")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok || payload == "" {
		return DataURL{}, fmt.Errorf("data URL has no payload")
	}
	mediaType, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return DataURL{}, fmt.Errorf("data URL is not base64 encoded")
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}
	return DataURL{MediaType: mediaType, Data: payload}, nil
}

// ExtractBase64 strips the data-URL header if present and returns just the
// base64 payload.
func ExtractBase64(raw string) string {
	if i := strings.IndexByte(raw, ','); i >= 0 && strings.HasPrefix(raw, "data:") {
		return raw[i+1:]
	}
	return raw
}

// ExtensionFromMediaType maps an image media type to a storage key extension.
func ExtensionFromMediaType(mediaType string) string {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "video/mp4":
		return "mp4"
	default:
		return "png"
	}
}
