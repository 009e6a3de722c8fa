package handlers

import (
	"net/http"

	"genie/internal/dispatch"
)

// NativeShellHeader is set by the native app wrapper on its bootstrap request.
const NativeShellHeader = "X-Native-Shell"

// ClientConfig tells a client which base URL its API calls should target.
// Browsers get an empty base and use same-origin relative paths; the native
// shell always gets an absolute URL.
func (a *App) ClientConfig(w http.ResponseWriter, r *http.Request) {
	ctx := dispatch.DetectContext(dispatch.Hints{
		NativeShell: r.Header.Get(NativeShellHeader) != "",
	})
	resolver := dispatch.NewResolver(ctx, a.NativeAppBaseURL)

	a.json(w, http.StatusOK, map[string]string{
		"execution_context": resolver.Context().String(),
		"api_base_url":      resolver.BaseURL(),
	})
}
