package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"genie/internal/genai"
	"genie/internal/images"
	"genie/internal/storage"
)

const normalizeMaxDimension = 1024

type imagePayload struct {
	MediaType string `json:"media_type"`
	// Data is the bare base64 payload (no data-URL header).
	Data string `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`
}

type generateAndStoreRequest struct {
	TextPrompt      string         `json:"text_prompt"`
	Personalization string         `json:"personalization,omitempty"`
	Images          []imagePayload `json:"images"`
	// FolderPrefix, when set, persists the generated image and returns its
	// public URL; otherwise the base64 payload is returned directly.
	FolderPrefix string `json:"folder_prefix,omitempty"`
}

// GenerateAndStore normalizes the input images, forwards them with the
// instruction to the generation gateway, and either returns the generated
// image inline or persists it under the requested folder prefix.
func (a *App) GenerateAndStore(w http.ResponseWriter, r *http.Request) {
	var req generateAndStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.TextPrompt) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "text_prompt required")
		return
	}

	sources := make([]images.Source, 0, len(req.Images))
	for _, img := range req.Images {
		switch {
		case img.Data != "":
			raw, err := base64.StdEncoding.DecodeString(images.ExtractBase64(img.Data))
			if err != nil {
				a.error(w, http.StatusBadRequest, "bad_request", "image data is not valid base64")
				return
			}
			sources = append(sources, images.FromBytes(raw))
		case img.URL != "":
			sources = append(sources, images.FromURL(img.URL))
		default:
			a.error(w, http.StatusBadRequest, "bad_request", "each image needs data or url")
			return
		}
	}

	// Normalizations run concurrently; the results keep input order, which
	// matters because the first image is the subject and the second the
	// reference.
	normalized, err := a.Normalizer.NormalizeAll(r.Context(), sources, images.Options{
		MaxDimension: normalizeMaxDimension,
		Format:       images.FormatPNG,
	})
	if err != nil {
		status, code := classifyNormalizeError(err)
		a.error(w, status, code, err.Error())
		return
	}

	inputs := make([]genai.ImageInput, len(normalized))
	for i, res := range normalized {
		inputs[i] = genai.ImageInput{MediaType: res.MIME, Data: res.Base64}
	}

	instruction := genai.ComposeInstruction(req.TextPrompt, req.Personalization)
	genReq, err := genai.BuildRequest(instruction, inputs)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	file, err := a.Gateway.Generate(r.Context(), genReq)
	if err != nil {
		if errors.Is(err, genai.ErrNoImageReturned) {
			a.error(w, http.StatusBadGateway, "no_image_returned", "the model returned no image")
			return
		}
		a.error(w, http.StatusBadGateway, "generation_failed", err.Error())
		return
	}

	if req.FolderPrefix == "" {
		a.json(w, http.StatusOK, map[string]string{
			"image_base64": file.Base64Data,
			"mime_type":    file.MediaType,
		})
		return
	}

	data, err := base64.StdEncoding.DecodeString(file.Base64Data)
	if err != nil {
		a.error(w, http.StatusBadGateway, "generation_failed", "model returned malformed image data")
		return
	}
	url, err := a.Writer.Store(r.Context(), data, file.MediaType, req.FolderPrefix, storage.StoreOptions{RequirePublicBase: true})
	if err != nil {
		if errors.Is(err, storage.ErrMissingPublicBaseURL) {
			a.error(w, http.StatusInternalServerError, "storage_misconfigured", "public base URL is required for stored results")
			return
		}
		// The image was generated but not persisted. Return the payload so
		// the caller can retry the save step without regenerating.
		a.Logger.Error().Err(err).Str("folder_prefix", req.FolderPrefix).Msg("generated image could not be stored")
		a.json(w, http.StatusBadGateway, map[string]string{
			"error":        "generated_not_stored",
			"message":      "image generated but could not be stored; retry the save step",
			"image_base64": file.Base64Data,
			"mime_type":    file.MediaType,
		})
		return
	}

	a.json(w, http.StatusOK, map[string]string{
		"image_url": url,
		"mime_type": file.MediaType,
	})
}

func classifyNormalizeError(err error) (int, string) {
	switch {
	case errors.Is(err, images.ErrFetch):
		return http.StatusBadGateway, "fetch_failed"
	case errors.Is(err, images.ErrUnsupportedFormat):
		return http.StatusBadRequest, "unsupported_format"
	default:
		return http.StatusBadRequest, "decode_failed"
	}
}
