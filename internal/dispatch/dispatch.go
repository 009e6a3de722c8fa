// Package dispatch resolves which base endpoint API calls should target
// depending on where the client code is executing. The native shell has no
// same-origin relative-path semantics, so it must always receive an absolute
// production URL; browsers use relative paths against their own origin.
package dispatch

// ExecutionContext is resolved once at startup and threaded through; call
// sites never re-detect it ad hoc.
type ExecutionContext int

const (
	// ContextBrowser: client-side in a regular browser. Relative paths work.
	ContextBrowser ExecutionContext = iota
	// ContextNative: inside the native app wrapper. Absolute URLs only.
	ContextNative
	// ContextServerRender: running server-side during rendering.
	ContextServerRender
)

func (c ExecutionContext) String() string {
	switch c {
	case ContextNative:
		return "native"
	case ContextServerRender:
		return "server-render"
	default:
		return "browser"
	}
}

// DefaultProductionURL is the documented fallback host for native contexts
// when no production URL is configured.
const DefaultProductionURL = "https://project-genie-sigma.vercel.app"

// Hints carries the runtime signals used to classify the execution context.
type Hints struct {
	// NativeShell is true when the code runs inside the native app wrapper.
	NativeShell bool
	// ServerSide is true when no client window exists (server rendering).
	ServerSide bool
}

// DetectContext classifies the execution context from runtime hints. Native
// wins over server-side: the wrapper never server-renders.
func DetectContext(h Hints) ExecutionContext {
	switch {
	case h.NativeShell:
		return ContextNative
	case h.ServerSide:
		return ContextServerRender
	default:
		return ContextBrowser
	}
}

// Resolver maps an execution context to the base URL all pipeline callers
// prepend to API paths.
type Resolver struct {
	ctx           ExecutionContext
	productionURL string
}

// NewResolver builds a Resolver for the given context. productionURL may be
// empty; native contexts then fall back to DefaultProductionURL.
func NewResolver(ctx ExecutionContext, productionURL string) Resolver {
	return Resolver{ctx: ctx, productionURL: trimTrailingSlash(productionURL)}
}

// Context returns the resolved execution context.
func (r Resolver) Context() ExecutionContext {
	return r.ctx
}

// BaseURL resolves the endpoint base. Native contexts always get an absolute
// URL, never an empty string. Browser contexts get "" meaning same-origin
// relative paths. Server renders get the configured URL or "".
func (r Resolver) BaseURL() string {
	switch r.ctx {
	case ContextNative:
		if r.productionURL != "" {
			return r.productionURL
		}
		return DefaultProductionURL
	case ContextServerRender:
		return r.productionURL
	default:
		return ""
	}
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
