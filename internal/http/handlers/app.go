package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"genie/internal/genai"
	"genie/internal/images"
	"genie/internal/share"
	"genie/internal/storage"
)

// App is the handler container wiring the pipeline components together.
type App struct {
	Logger     zerolog.Logger
	Normalizer *images.Normalizer
	Gateway    *genai.Client
	Writer     *storage.Writer
	Shares     *share.Publisher
	// NativeAppBaseURL is the production URL handed to native shells, which
	// cannot use same-origin relative paths.
	NativeAppBaseURL string
}

func NewApp(logger zerolog.Logger, normalizer *images.Normalizer, gateway *genai.Client, writer *storage.Writer, shares *share.Publisher, nativeAppBaseURL string) *App {
	return &App{
		Logger:           logger,
		Normalizer:       normalizer,
		Gateway:          gateway,
		Writer:           writer,
		Shares:           shares,
		NativeAppBaseURL: nativeAppBaseURL,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// error writes a structured error body. Every failure resolves to an explicit
// message suitable for display; no silent fallback to a broken URL.
func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
