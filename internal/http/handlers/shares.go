package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"genie/internal/share"
)

type createShareRequest struct {
	ImageURL      string `json:"image_url"`
	DisplayName   string `json:"display_name"`
	AttributionID string `json:"attribution_id,omitempty"`
}

// CreateShare mints a share record for an already-stored artifact. The stored
// object write and this record write are independent; a failure here means
// "uploaded but not shared" and is safe to retry with the same image URL.
func (a *App) CreateShare(w http.ResponseWriter, r *http.Request) {
	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.ImageURL) == "" || strings.TrimSpace(req.DisplayName) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "image_url and display_name required")
		return
	}

	result, err := a.Shares.Publish(r.Context(), share.PublishInput{
		StoredObjectURL: req.ImageURL,
		DisplayName:     req.DisplayName,
		AttributionID:   req.AttributionID,
		RequestOrigin:   r.Header.Get("Origin"),
		RequestHost:     r.Host,
	})
	if err != nil {
		if errors.Is(err, share.ErrPersist) {
			a.error(w, http.StatusBadGateway, "share_failed", "image is stored but the share link was not created; retry sharing")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	a.json(w, http.StatusCreated, map[string]string{
		"id":        result.ID,
		"share_url": result.ShareURL,
	})
}

// GetShare resolves a share id to its record and bumps the access counter.
func (a *App) GetShare(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}

	rec, err := a.Shares.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, share.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "share not found")
			return
		}
		a.error(w, http.StatusBadGateway, "share_lookup_failed", "failed to load share")
		return
	}

	if err := a.Shares.IncrementAccessCount(r.Context(), id); err != nil {
		a.Logger.Warn().Err(err).Str("share_id", id).Msg("failed to bump access count")
	}

	a.json(w, http.StatusOK, map[string]any{
		"id":           rec.ID,
		"image_url":    rec.StoredObjectURL,
		"display_name": rec.DisplayName,
		"access_count": rec.AccessCount,
		"created_at":   rec.CreatedAt,
	})
}
