package middleware

import "github.com/ignishq/ignis"

// ErrorTranslator installs fn as e's error translator, the sanitizing step
// every uncaught handler/middleware error passes through before it reaches
// the wire (see Engine.SetErrorHandler). Like Recover, this is a
// configuration call rather than a pluggable chain stage, since translation
// happens once per request regardless of how many middleware ran; it
// returns a no-op Middleware purely so registration code can list it
// alongside every other pipeline stage.
func ErrorTranslator(e *ignis.Engine, fn ignis.ErrorHandler) ignis.Middleware {
	e.SetErrorHandler(fn)
	return ignis.Middleware{Name: "error_translator", Priority: -1000}
}
