package genai

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingImageData indicates an image input carries neither inline
	// data nor a URL.
	ErrMissingImageData = errors.New("genai: image has neither data nor url")
	// ErrNoImageReturned indicates the gateway response contained no file
	// part. Not retried here.
	ErrNoImageReturned = errors.New("genai: no image returned")
)

// PartKind tags the members of the content union.
type PartKind string

const (
	PartText PartKind = "text"
	PartFile PartKind = "file"
)

// Part is one ordered element of a generation request: either an instruction
// text or an encoded image.
type Part struct {
	Kind      PartKind
	Text      string
	MediaType string
	// Data holds the base64 payload for inline images, or the remote URL
	// when the image is URL-addressed.
	Data string
}

// ImageInput describes one image attached to a generation request. Either
// Data (base64 payload) or URL must be set.
type ImageInput struct {
	MediaType string
	Data      string
	URL       string
}

// Request is the ordered bundle sent to the generation gateway: one text part
// first, then one file part per image in input order. Multi-image composition
// is order-sensitive, so the order is part of the contract.
type Request struct {
	Parts []Part
}

// BuildRequest validates the instruction and images and assembles the parts
// array. It is a pure transformation; invoking the gateway is the caller's
// concern.
func BuildRequest(instruction string, inputs []ImageInput) (Request, error) {
	if strings.TrimSpace(instruction) == "" {
		return Request{}, fmt.Errorf("genai: instruction text is required")
	}

	parts := make([]Part, 0, len(inputs)+1)
	parts = append(parts, Part{Kind: PartText, Text: instruction})

	for i, in := range inputs {
		switch {
		case in.Data != "":
			parts = append(parts, Part{Kind: PartFile, MediaType: in.MediaType, Data: in.Data})
		case in.URL != "":
			parts = append(parts, Part{Kind: PartFile, MediaType: in.MediaType, Data: in.URL})
		default:
			return Request{}, fmt.Errorf("%w (image %d)", ErrMissingImageData, i)
		}
	}

	return Request{Parts: parts}, nil
}

// ComposeInstruction joins a base instruction with an optional user-supplied
// personalization addendum. The base always comes first; order affects model
// output.
func ComposeInstruction(base, personalization string) string {
	personalization = strings.TrimSpace(personalization)
	if personalization == "" {
		return base
	}
	return base + "\n" + personalization
}
