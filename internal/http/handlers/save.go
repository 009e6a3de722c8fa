package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"genie/internal/storage"
)

type saveImageRequest struct {
	// Image is a full data URL (data:image/...;base64,...).
	Image         string `json:"image"`
	Destination   string `json:"destination"`
	DirectoryName string `json:"directory_name,omitempty"`
}

// SaveImage persists a client-supplied data URL under the destination prefix
// and returns the public URL. This call site always requires a configured
// public base URL; an endpoint-derived link would not be externally
// resolvable for shared images.
func (a *App) SaveImage(w http.ResponseWriter, r *http.Request) {
	var req saveImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if !strings.HasPrefix(req.Image, "data:image") {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid image data")
		return
	}
	if strings.TrimSpace(req.Destination) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "destination required")
		return
	}

	url, err := a.Writer.StoreDataURL(r.Context(), req.Image, req.Destination, req.DirectoryName,
		storage.StoreOptions{RequirePublicBase: true})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrMissingPublicBaseURL):
			a.error(w, http.StatusInternalServerError, "storage_misconfigured", "public base URL is required")
		case errors.Is(err, storage.ErrStorageWrite):
			a.error(w, http.StatusBadGateway, "storage_write_failed", "failed to save image")
		default:
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		}
		return
	}

	a.json(w, http.StatusOK, map[string]string{"url": url})
}
